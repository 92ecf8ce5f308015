package classifier

import (
	"strings"
	"unicode"
)

// Topic is a psychology subject the assistant can be asked about.
type Topic string

const (
	TopicAnxiety       Topic = "ansiedade"
	TopicDepression    Topic = "depressao"
	TopicStress        Topic = "estresse"
	TopicRelationships Topic = "relacionamentos"
	TopicSelfEsteem    Topic = "autoestima"
	TopicGrief         Topic = "luto"
	TopicSleep         Topic = "sono"
	TopicTrauma        Topic = "trauma"
)

type topicRule struct {
	topic    Topic
	keywords []string
}

type courseRule struct {
	courseID string
	keywords []string
}

// Rules are checked in order; the first rule with a matching keyword wins.
// Keywords match whole words ("curso" does not match "recurso"); a trailing
// "*" lets the last word match as a prefix ("ansios*" matches "ansiosa").
// Multi-word keywords match consecutive words.
var topicRules = []topicRule{
	{TopicAnxiety, []string{"ansiedade", "ansios*", "pânico", "panico"}},
	{TopicDepression, []string{"depress*", "deprimid*", "tristeza", "desânimo", "desanimo"}},
	{TopicStress, []string{"estresse", "estressad*", "stress", "burnout", "esgotamento"}},
	{TopicRelationships, []string{"relacionamento*", "casamento", "namoro", "divórcio", "divorcio"}},
	{TopicSelfEsteem, []string{"autoestima", "auto-estima", "autoconfiança", "insegurança"}},
	{TopicGrief, []string{"luto", "falecimento"}},
	{TopicSleep, []string{"insônia", "insonia", "sono"}},
	{TopicTrauma, []string{"trauma*", "traumático", "tept", "abuso"}},
}

var courseRules = []courseRule{
	{"curso_tcc", []string{"tcc", "terapia cognitiva", "cognitivo-comportamental", "cognitivo comportamental"}},
	{"curso_neuropsicologia", []string{"neuropsicologia", "neurociência", "neurociencia"}},
	{"curso_psicologia_infantil", []string{"infantil", "criança*", "crianca*", "adolescente*"}},
	{"curso_psicanalise", []string{"psicanálise", "psicanalise", "freud*"}},
	{"curso_psicologia_organizacional", []string{"organizacional", "recursos humanos"}},
	{"curso_geral_psicologia", []string{"curso", "cursos", "formação", "formacao", "especialização", "especializacao"}},
}

// ClassifyTopic guesses the topic of a message by keyword. ok is false when
// no rule matches.
func ClassifyTopic(content string) (Topic, bool) {
	words := tokenize(content)
	for _, rule := range topicRules {
		if containsAny(words, rule.keywords) {
			return rule.topic, true
		}
	}
	return "", false
}

// ClassifyCourse guesses which course a message refers to by keyword.
func ClassifyCourse(content string) (string, bool) {
	words := tokenize(content)
	for _, rule := range courseRules {
		if containsAny(words, rule.keywords) {
			return rule.courseID, true
		}
	}
	return "", false
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsAny(words []string, keywords []string) bool {
	for _, keyword := range keywords {
		if containsKeyword(words, keyword) {
			return true
		}
	}
	return false
}

func containsKeyword(words []string, keyword string) bool {
	prefix := strings.HasSuffix(keyword, "*")
	want := tokenize(strings.TrimSuffix(keyword, "*"))
	if len(want) == 0 {
		return false
	}

	last := len(want) - 1
	for i := 0; i+len(want) <= len(words); i++ {
		match := true
		for j, w := range want {
			got := words[i+j]
			if j == last && prefix {
				match = strings.HasPrefix(got, w)
			} else {
				match = got == w
			}
			if !match {
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
