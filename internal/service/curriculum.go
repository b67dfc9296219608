package service

import (
	"engz_backend/internal/model"
	"fmt"
	"strings"
)

type MissionSpec struct {
	Week    int    `json:"week"`
	Day     int    `json:"day"`
	Content string `json:"content"`
}

var themeTemplates = map[model.Theme][]string{
	model.ThemeGrammar: {
		"Write five sentences using the present perfect tense about your week.",
		"Explain a past event using at least three different past tenses.",
		"Describe your plans for next month using future forms (will, going to, present continuous).",
		"Write a short paragraph that uses two conditional sentences.",
		"Rewrite three active sentences in the passive voice and explain the change.",
	},
	model.ThemeSlang: {
		"Use \"hang out\", \"chill\" and \"no worries\" in a short dialogue with a friend.",
		"Tell a story about your weekend using at least three informal expressions.",
		"Explain the meaning of \"spill the tea\" and use it in context.",
		"Reply to a friend's text message using casual abbreviations and idioms.",
		"Describe something you love using modern slang like \"lit\" or \"a vibe\".",
	},
	model.ThemeBusiness: {
		"Write a short email to a client proposing a meeting time.",
		"Introduce yourself and your role as you would in a business meeting.",
		"Summarize a project update for your manager in three bullet points.",
		"Politely disagree with a colleague's proposal and suggest an alternative.",
		"Draft a short pitch for a product or service you know well.",
	},
	model.ThemeTravel: {
		"Ask for directions to the train station and confirm the route.",
		"Check in at a hotel and request a room with a view.",
		"Order a meal at a restaurant and ask about an ingredient.",
		"Describe a problem with your luggage to airline staff.",
		"Recommend a place to visit in your city to a tourist.",
	},
	model.ThemeSpeaking: {
		"Talk for one minute about your favourite hobby.",
		"Describe a memorable day from your childhood.",
		"Give your opinion on remote work and support it with two reasons.",
		"Explain how to cook a simple dish step by step.",
		"Describe a person who inspires you and why.",
	},
}

// 未知主题使用的模板
const fallbackTheme = model.ThemeGrammar

var knownThemes = []model.Theme{
	model.ThemeGrammar,
	model.ThemeSlang,
	model.ThemeBusiness,
	model.ThemeTravel,
	model.ThemeSpeaking,
}

// ParseTheme 大小写不敏感地解析主题名
func ParseTheme(s string) (model.Theme, bool) {
	s = strings.TrimSpace(s)
	for _, t := range knownThemes {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

func templatesFor(theme model.Theme) []string {
	if t, ok := ParseTheme(string(theme)); ok {
		if templates := themeTemplates[t]; len(templates) > 0 {
			return templates
		}
	}
	return themeTemplates[fallbackTheme]
}

// GenerateCurriculum 为主题生成 4 周 x 5 天共 20 个任务，结果只取决于主题
func GenerateCurriculum(theme model.Theme) []MissionSpec {
	templates := templatesFor(theme)
	specs := make([]MissionSpec, 0, model.MissionsPerRoutine)
	for week := 1; week <= model.RoutineWeeks; week++ {
		for d := 1; d <= model.RoutineDaysPerWeek; d++ {
			index := ((week-1)*model.RoutineDaysPerWeek + (d - 1)) % len(templates)
			specs = append(specs, MissionSpec{
				Week:    week,
				Day:     d,
				Content: fmt.Sprintf("Week %d, Day %d: %s", week, d, templates[index]),
			})
		}
	}
	return specs
}
