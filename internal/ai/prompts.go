package ai

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/DukeRupert/postpilot/internal/domain"
)

// Input is the union of request fields accepted by the generation
// endpoints. Each template reads only the fields it needs.
type Input struct {
	Topic          string          `json:"topic"`
	Platform       string          `json:"platform"`
	Tone           string          `json:"tone"`
	BusinessType   string          `json:"businessType"`
	Duration       int             `json:"duration"`
	CommentType    string          `json:"commentType"`
	PromoType      string          `json:"promoType"`
	Discount       string          `json:"discount"`
	Deadline       string          `json:"deadline"`
	Goal           string          `json:"goal"`
	Persona        json.RawMessage `json:"persona"`
	History        []ChatMessage   `json:"history"`
	UserMessage    string          `json:"userMessage"`
	ReviewText     string          `json:"reviewText"`
	Rating         int             `json:"rating"`
	InactiveSince  string          `json:"inactiveSince"`
	Offer          string          `json:"offer"`
	ProductName    string          `json:"productName"`
	LaunchDate     string          `json:"launchDate"`
	CompetitorType string          `json:"competitorType"`
	Bio            string          `json:"bio"`
	Caption        string          `json:"caption"`
	Hashtags       []string        `json:"hashtags"`
	TargetLang     string          `json:"targetLang"`
	Count          int             `json:"count"`
	Prompt         string          `json:"prompt"`
	Width          int             `json:"width"`
	Height         int             `json:"height"`
}

// ChatMessage is one turn of a simulated sales conversation.
type ChatMessage struct {
	Role    string `json:"role"` // "user" is the seller, anything else the client
	Content string `json:"content"`
}

// Template renders the prompts for one feature.
type Template struct {
	// Key names the field the result is returned under.
	Key string
	// MaxTokens bounds the reply length.
	MaxTokens int
	// JSON is set when the reply must parse as JSON.
	JSON bool
	// Parts lists features rendered concurrently and merged into one result.
	Parts []domain.FeatureID

	required []field
	defaults func(*Input)
	system   func(Input) string
	user     func(Input) string
}

type field struct {
	name  string
	value func(Input) string
}

var (
	fTopic        = field{"topic", func(in Input) string { return in.Topic }}
	fBusinessType = field{"businessType", func(in Input) string { return in.BusinessType }}
	fUserMessage  = field{"userMessage", func(in Input) string { return in.UserMessage }}
	fReviewText   = field{"reviewText", func(in Input) string { return in.ReviewText }}
	fProductName  = field{"productName", func(in Input) string { return in.ProductName }}
	fCompetitor   = field{"competitorType", func(in Input) string { return in.CompetitorType }}
	fBio          = field{"bio", func(in Input) string { return in.Bio }}
	fCaption      = field{"caption", func(in Input) string { return in.Caption }}
	fTargetLang   = field{"targetLang", func(in Input) string { return in.TargetLang }}
	fPrompt       = field{"prompt", func(in Input) string { return in.Prompt }}
)

// Validate applies defaults and checks required fields.
func (t Template) Validate(op string, in *Input) error {
	applyCommonDefaults(in)
	if t.defaults != nil {
		t.defaults(in)
	}
	var missing []string
	for _, f := range t.required {
		if strings.TrimSpace(f.value(*in)) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return domain.Invalid(op, fmt.Sprintf("Missing required fields: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// Params renders the generation parameters for a validated input.
func (t Template) Params(in Input) GenerateParams {
	return GenerateParams{
		System:    t.system(in),
		Prompt:    t.user(in),
		MaxTokens: t.MaxTokens,
	}
}

// Local reports whether the feature is served without calling a Generator.
func (t Template) Local() bool {
	return t.system == nil && len(t.Parts) == 0
}

// Lookup returns the template for a feature.
func Lookup(feature domain.FeatureID) (Template, bool) {
	t, ok := templates[feature]
	return t, ok
}

// ImageURL builds a Pollinations image URL for the "image" feature.
func ImageURL(in Input) string {
	return fmt.Sprintf("https://image.pollinations.ai/prompt/%s?width=%d&height=%d&nologo=true&enhance=true",
		url.PathEscape(in.Prompt), in.Width, in.Height)
}

func applyCommonDefaults(in *Input) {
	if in.Platform == "" {
		in.Platform = "instagram"
	}
	if in.Tone == "" {
		in.Tone = "professional"
	}
}

func business(in Input) string {
	if strings.TrimSpace(in.BusinessType) == "" {
		return "a small business"
	}
	return in.BusinessType
}

var toneNames = map[string]string{
	"professional": "professional",
	"fun":          "fun and upbeat",
	"luxury":       "luxurious",
	"young":        "youthful",
	"neutral":      "neutral",
}

func toneName(tone string) string {
	if t, ok := toneNames[tone]; ok {
		return t
	}
	return "neutral"
}

var commentTypes = map[string]string{
	"positive": "compliments",
	"negative": "criticism",
	"question": "product questions",
	"price":    "pricing questions",
	"shipping": "shipping questions",
}

var languages = map[string]string{
	"en": "English",
	"es": "Spanish",
	"ar": "Arabic",
	"de": "German",
	"it": "Italian",
	"fr": "French",
}

func chatTranscript(history []ChatMessage, message string) string {
	var b strings.Builder
	for _, m := range history {
		speaker := "Client"
		if m.Role == "user" {
			speaker = "Seller"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	fmt.Fprintf(&b, "\nSeller: %s\nClient:", message)
	return b.String()
}

var templates = map[domain.FeatureID]Template{
	"caption": {
		Key: "caption", MaxTokens: 500,
		required: []field{fTopic},
		system: func(in Input) string {
			return fmt.Sprintf("You write %s content. Output ONLY the caption, without hashtags.", in.Platform)
		},
		user: func(in Input) string {
			return fmt.Sprintf("%s caption for %q about: %q. Tone: %s. At most 150 words. Use emojis.",
				in.Platform, business(in), in.Topic, toneName(in.Tone))
		},
	},
	"hashtags": {
		Key: "hashtags", MaxTokens: 400, JSON: true,
		required: []field{fTopic},
		system:   func(in Input) string { return fmt.Sprintf("You are a %s SEO expert.", in.Platform) },
		user: func(in Input) string {
			return fmt.Sprintf(`20 %s hashtags for %q about %q. Mix popular, mid-size and niche tags. JSON: ["h1","h2"]`,
				in.Platform, business(in), in.Topic)
		},
	},
	"caption-full": {
		Key:      "caption",
		Parts:    []domain.FeatureID{"caption", "hashtags"},
		required: []field{fTopic},
	},
	"week": {
		Key: "week", MaxTokens: 2500, JSON: true,
		required: []field{fBusinessType},
		system:   func(in Input) string { return fmt.Sprintf("You are a %s content strategist.", in.Platform) },
		user: func(in Input) string {
			return fmt.Sprintf(`7 %s posts for %q. Tone: %s. JSON: [{"day":1,"dayName":"Monday","theme":"...","caption":"...","hashtags":["h1","h2","h3","h4","h5"],"bestTime":"HH:MM"}]`,
				in.Platform, in.BusinessType, in.Tone)
		},
	},
	"bio": {
		Key: "bios", MaxTokens: 600, JSON: true,
		required: []field{fBusinessType},
		system:   func(in Input) string { return fmt.Sprintf("You are a %s personal branding expert.", in.Platform) },
		user: func(in Input) string {
			return fmt.Sprintf(`3 %s bios for %q, tone %s. At most 150 characters each, with an emoji and a call to action. JSON: [{"style":"Professional","bio":"..."},{"style":"Creative","bio":"..."},{"style":"Minimalist","bio":"..."}]`,
				in.Platform, in.BusinessType, in.Tone)
		},
	},
	"video-script": {
		Key: "script", MaxTokens: 800, JSON: true,
		required: []field{fTopic, fBusinessType},
		defaults: func(in *Input) {
			if in.Duration <= 0 {
				in.Duration = 30
			}
		},
		system: func(Input) string { return "You create viral TikTok videos." },
		user: func(in Input) string {
			return fmt.Sprintf(`%ds TikTok script about %q for %q. JSON: {"hook":"0-3s opener","content":"body","cta":"call to action","visualTips":["t1","t2","t3"],"hashtags":["h1","h2","h3","h4","h5"]}`,
				in.Duration, in.Topic, in.BusinessType)
		},
	},
	"image": {
		Key: "imageUrl",
		required: []field{fPrompt},
		defaults: func(in *Input) {
			if in.Width <= 0 {
				in.Width = 1080
			}
			if in.Height <= 0 {
				in.Height = 1080
			}
		},
	},
	"ideas30": {
		Key: "ideas", MaxTokens: 2500, JSON: true,
		required: []field{fBusinessType},
		system:   func(Input) string { return "You are a social media content strategist." },
		user: func(in Input) string {
			return fmt.Sprintf(`30 %s post ideas for %q. 5 per category: Educational, Behind the scenes, Promotion, Engagement, Inspiration, Trending. JSON: [{"id":1,"category":"Educational","title":"title","hook":"first sentence"}]`,
				in.Platform, in.BusinessType)
		},
	},
	"comment-replies": {
		Key: "replies", MaxTokens: 800, JSON: true,
		required: []field{fBusinessType},
		defaults: func(in *Input) {
			if in.CommentType == "" {
				in.CommentType = "positive"
			}
		},
		system: func(in Input) string { return fmt.Sprintf("You are the community manager of %q.", in.BusinessType) },
		user: func(in Input) string {
			kind, ok := commentTypes[in.CommentType]
			if !ok {
				kind = "comments"
			}
			return fmt.Sprintf(`5 template replies to %s. Natural, 1-3 sentences, emojis where appropriate. JSON: [{"reply":"...","note":"when to use"}]`, kind)
		},
	},
	"promo": {
		Key: "promo", MaxTokens: 900, JSON: true,
		required: []field{fBusinessType},
		defaults: func(in *Input) {
			if in.PromoType == "" {
				in.PromoType = "Sale"
			}
			if in.Discount == "" {
				in.Discount = "-20%"
			}
			if in.Deadline == "" {
				in.Deadline = "this weekend"
			}
		},
		system: func(Input) string { return "You are a marketing copywriter." },
		user: func(in Input) string {
			return fmt.Sprintf(`Complete promotion for %q. Type: %s Discount: %s Deadline: %s Platform: %s. JSON: {"headline":"title","subheadline":"subtitle","caption":"caption with emojis","conditions":"1 sentence","cta":"call to action","storyText":"story text","hashtags":["h1","h2","h3","h4","h5"],"urgencyPhrase":"urgency","bestPostTime":"when"}`,
				in.BusinessType, in.PromoType, in.Discount, in.Deadline, in.Platform)
		},
	},
	"strategy90": {
		Key: "strategy", MaxTokens: 2000, JSON: true,
		required: []field{fBusinessType},
		defaults: func(in *Input) {
			if in.Goal == "" {
				in.Goal = "Grow followers and customers"
			}
		},
		system: func(Input) string { return "You are a digital strategy consultant for small businesses." },
		user: func(in Input) string {
			return fmt.Sprintf(`90-day content plan for %q, goal: %q on %s. Three months, four weeks each. JSON: {"overview":"vision","kpis":["k1","k2","k3"],"months":[{"month":1,"theme":"...","objective":"...","weeks":[{"week":1,"focus":"...","contentTypes":["t1"],"postFrequency":"X/week"}]}],"tips":["t1","t2","t3"]}`,
				in.BusinessType, in.Goal, in.Platform)
		},
	},
	"persona": {
		Key: "persona", MaxTokens: 1000, JSON: true,
		required: []field{fBusinessType},
		system:   func(Input) string { return "You are a marketing expert in consumer psychology." },
		user: func(in Input) string {
			return fmt.Sprintf(`Ideal customer persona for %q on %s. JSON: {"name":"first name","age":"range","job":"job","location":"place","income":"income","bio":"2 sentence life story","goals":["g1","g2","g3"],"painPoints":["p1","p2","p3"],"objections":["o1","o2","o3"],"triggers":["t1","t2"],"socialMedia":{"platforms":["p1","p2"],"usage":"usage","bestTime":"when"},"salesArguments":["a1","a2","a3"],"avoidWords":["w1","w2"],"useWords":["w1","w2","w3"]}`,
				in.BusinessType, in.Platform)
		},
	},
	"simulate-client": {
		Key: "reply", MaxTokens: 300,
		required: []field{fBusinessType, fUserMessage},
		system: func(in Input) string {
			persona := string(in.Persona)
			if persona == "" {
				persona = "{}"
			}
			return fmt.Sprintf("You play a prospective customer of %q. Persona: %s. You have real objections and you hesitate. NEVER reveal that you are an AI. Reply naturally in 1-3 sentences.",
				in.BusinessType, persona)
		},
		user: func(in Input) string { return chatTranscript(in.History, in.UserMessage) },
	},
	"review-reply": {
		Key: "replies", MaxTokens: 700, JSON: true,
		required: []field{fBusinessType, fReviewText},
		defaults: func(in *Input) {
			if in.Rating <= 0 || in.Rating > 5 {
				in.Rating = 5
			}
		},
		system: func(in Input) string {
			return fmt.Sprintf("You manage the online reputation of %q. Answer in a %s tone.", in.BusinessType, in.Tone)
		},
		user: func(in Input) string {
			return fmt.Sprintf(`3 replies to this Google review (%d/5): %q. JSON: [{"style":"Warm","reply":"..."},{"style":"Professional","reply":"..."},{"style":"Personal","reply":"..."}]`,
				in.Rating, in.ReviewText)
		},
	},
	"story-sequence": {
		Key: "stories", MaxTokens: 900, JSON: true,
		required: []field{fBusinessType},
		defaults: func(in *Input) {
			if in.Goal == "" {
				in.Goal = "Sell my product"
			}
		},
		system: func(in Input) string { return fmt.Sprintf("You write %s Stories that convert.", in.Platform) },
		user: func(in Input) string {
			return fmt.Sprintf(`Sequence of 5 Stories for %q, goal: %q. JSON: [{"slide":1,"type":"Hook","text":"main text","subtext":"secondary text","background":"background style","sticker":"suggested sticker","tip":"layout tip"}]`,
				in.BusinessType, in.Goal)
		},
	},
	"reengagement-email": {
		Key: "email", MaxTokens: 900, JSON: true,
		required: []field{fBusinessType},
		defaults: func(in *Input) {
			if in.InactiveSince == "" {
				in.InactiveSince = "3 months"
			}
		},
		system: func(Input) string { return "You are an email marketing expert." },
		user: func(in Input) string {
			return fmt.Sprintf(`Win-back email for customers of %q inactive for %q. Offer: %q. JSON: {"subject":"subject, max 50 chars","preheader":"preview, max 90 chars","body":"full body using [FIRSTNAME]","cta":"button text","ps":"postscript"}`,
				in.BusinessType, in.InactiveSince, in.Offer)
		},
	},
	"launch-plan": {
		Key: "plan", MaxTokens: 1500, JSON: true,
		required: []field{fBusinessType, fProductName},
		defaults: func(in *Input) {
			if in.LaunchDate == "" {
				in.LaunchDate = "in 2 weeks"
			}
		},
		system: func(Input) string { return "You are a social media product launch expert." },
		user: func(in Input) string {
			return fmt.Sprintf(`Launch plan for %q by %q on %s via %s. Phases: Teaser (D-7 to D-3), Reveal (D-2 to D0), Post-launch (D+1 to D+7), three posts each. JSON: {"strategy":"strategy","phases":[{"phase":"Teaser","objective":"anticipation","posts":[{"day":"D-7","type":"type","content":"idea","hook":"hook"}]}],"hashtags":["h1","h2","h3","h4","h5"],"tips":["t1","t2","t3"]}`,
				in.ProductName, in.BusinessType, in.LaunchDate, in.Platform)
		},
	},
	"competitor-strategy": {
		Key: "strategy", MaxTokens: 900, JSON: true,
		required: []field{fBusinessType, fCompetitor},
		system:   func(Input) string { return "You are a digital strategy consultant." },
		user: func(in Input) string {
			return fmt.Sprintf(`Differentiation strategy against %q for %q on %s. JSON: {"competitorWeaknesses":["w1","w2","w3"],"differentiators":["d1","d2","d3"],"contentGaps":["g1","g2","g3"],"contentIdeas":[{"title":"idea","why":"reason"}],"toneAdvice":"advice","actionPlan":["a1","a2","a3"]}`,
				in.CompetitorType, in.BusinessType, in.Platform)
		},
	},
	"audit-bio": {
		Key: "audit", MaxTokens: 700, JSON: true,
		required: []field{fBio},
		system:   func(in Input) string { return fmt.Sprintf("You are a %s personal branding and SEO expert.", in.Platform) },
		user: func(in Input) string {
			return fmt.Sprintf(`Review this %s bio for %q: %q. JSON: {"score":75,"scoreLabel":"Fair","strengths":["s1","s2"],"weaknesses":["w1","w2","w3"],"improved":"improved version","tips":["t1","t2","t3"]}`,
				in.Platform, business(in), in.Bio)
		},
	},
	"post-series": {
		Key: "series", MaxTokens: 2000, JSON: true,
		required: []field{fTopic, fBusinessType},
		system:   func(in Input) string { return fmt.Sprintf("You are a %s content strategist.", in.Platform) },
		user: func(in Input) string {
			return fmt.Sprintf(`Series of 5 %s posts about %q for %q, each in a different format: Educational, Storytelling, Tips list, Question, Testimonial. JSON: [{"format":"Educational","title":"title","caption":"full caption","hashtags":["h1","h2","h3"]}]`,
				in.Platform, in.Topic, in.BusinessType)
		},
	},
	"translate": {
		Key: "translated", MaxTokens: 700, JSON: true,
		required: []field{fCaption, fTargetLang},
		system:   func(Input) string { return "You translate social media marketing copy and adapt it culturally." },
		user: func(in Input) string {
			lang, ok := languages[in.TargetLang]
			if !ok {
				lang = in.TargetLang
			}
			return fmt.Sprintf(`Translate into %s: %q | Hashtags: %s. JSON: {"caption":"translated post","hashtags":["h1","h2","h3"],"culturalNote":"adaptation note"}`,
				lang, in.Caption, strings.Join(in.Hashtags, ", "))
		},
	},
	"viral-hook": {
		Key: "hooks", MaxTokens: 900, JSON: true,
		required: []field{fTopic},
		defaults: func(in *Input) {
			if in.Count <= 0 || in.Count > 20 {
				in.Count = 10
			}
		},
		system: func(in Input) string { return fmt.Sprintf("You create viral %s content.", in.Platform) },
		user: func(in Input) string {
			return fmt.Sprintf(`%d scroll-stopping hooks for %q on %s. Techniques: precise number, provocative question, counter-intuition, secret, fear of missing out. JSON: [{"hook":"...","technique":"precise number","why":"why it works"}]`,
				in.Count, in.Topic, in.Platform)
		},
	},
}
