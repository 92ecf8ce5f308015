package classifier

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/xaenox/wa-assistant-bridge/internal/metrics"
	"github.com/xaenox/wa-assistant-bridge/internal/models"
)

// DefaultFallbackReply is sent when the assistant produced nothing usable.
const DefaultFallbackReply = "Olá! Recebi sua mensagem e já estou verificando. " +
	"Em instantes retorno com mais informações sobre nossos cursos e conteúdos de psicologia."

// Path tells how a response was produced.
type Path string

const (
	PathStructured Path = "structured"
	PathFallback   Path = "fallback"
)

var errMalformed = errors.New("malformed assistant response")

// optionalStrings are the fields that must be a string or null when present.
var optionalStrings = []string{"identified_course_id", "psychology_topic"}

type Interpreter struct {
	fallbackReply string
	logger        *zap.Logger
}

func NewInterpreter(fallbackReply string, logger *zap.Logger) *Interpreter {
	if strings.TrimSpace(fallbackReply) == "" {
		fallbackReply = DefaultFallbackReply
	}
	return &Interpreter{
		fallbackReply: fallbackReply,
		logger:        logger.Named("interpreter"),
	}
}

// Interpret turns the assistant's raw text into a response. It never fails:
// empty or malformed text yields the keyword fallback built from original.
func (i *Interpreter) Interpret(raw, original string) (models.AssistantResponse, Path) {
	if strings.TrimSpace(raw) != "" {
		resp, err := parseStructured(raw)
		if err == nil {
			metrics.ResponsePath.WithLabelValues(string(PathStructured)).Inc()
			return resp, PathStructured
		}
		i.logger.Warn("Failed to parse assistant response",
			zap.Error(err),
			zap.String("response", raw))
	}

	metrics.ResponsePath.WithLabelValues(string(PathFallback)).Inc()
	return i.Fallback(original), PathFallback
}

// Fallback builds a response from keyword matching on the inbound text.
func (i *Interpreter) Fallback(original string) models.AssistantResponse {
	resp := models.AssistantResponse{
		Reply:      i.fallbackReply,
		OutOfScope: false,
	}
	if topic, ok := ClassifyTopic(original); ok {
		s := string(topic)
		resp.PsychologyTopic = &s
	}
	if course, ok := ClassifyCourse(original); ok {
		resp.IdentifiedCourseID = &course
	}
	return resp
}

func parseStructured(raw string) (models.AssistantResponse, error) {
	var resp models.AssistantResponse

	text := stripCodeFence(strings.TrimSpace(raw))
	if !gjson.Valid(text) {
		return resp, errMalformed
	}
	root := gjson.Parse(text)
	if !root.IsObject() {
		return resp, errMalformed
	}

	reply := root.Get("reply")
	if reply.Type != gjson.String || strings.TrimSpace(reply.Str) == "" {
		return resp, errors.New("assistant response has no reply")
	}
	for _, key := range optionalStrings {
		if v := root.Get(key); v.Exists() && v.Type != gjson.String && v.Type != gjson.Null {
			return resp, errors.New("assistant response field " + key + " is not a string")
		}
	}
	if v := root.Get("out_of_scope"); v.Exists() && !v.IsBool() && v.Type != gjson.Null {
		return resp, errors.New("assistant response field out_of_scope is not a boolean")
	}

	// Built from the validated values: with duplicate keys gjson and
	// encoding/json disagree on which one counts.
	resp.Reply = reply.Str
	resp.IdentifiedCourseID = optionalString(root.Get("identified_course_id"))
	resp.PsychologyTopic = optionalString(root.Get("psychology_topic"))
	resp.OutOfScope = root.Get("out_of_scope").Bool()
	return resp, nil
}

func optionalString(v gjson.Result) *string {
	if v.Type != gjson.String {
		return nil
	}
	s := v.Str
	return &s
}

// stripCodeFence removes a surrounding ```json ... ``` block, if any.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(s[:nl]), "{") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(s)
}
