package classifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestInterpreter() *Interpreter {
	return NewInterpreter("", zap.NewNop())
}

func TestInterpret_StructuredRoundTrip(t *testing.T) {
	inputs := []string{
		`{"reply":"Olá!","identified_course_id":"curso_geral_psicologia","psychology_topic":null,"out_of_scope":false}`,
		`{"reply":"Posso ajudar com ansiedade.","identified_course_id":null,"psychology_topic":"ansiedade","out_of_scope":false}`,
		`{"reply":"Não consigo ajudar com isso.","identified_course_id":null,"psychology_topic":null,"out_of_scope":true}`,
	}

	in := newTestInterpreter()
	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			resp, path := in.Interpret(raw, "qualquer coisa sobre depressão")
			assert.Equal(t, PathStructured, path)

			out, err := json.Marshal(resp)
			require.NoError(t, err)
			assert.JSONEq(t, raw, string(out))
		})
	}
}

func TestInterpret_ScenarioC(t *testing.T) {
	raw := `{"reply":"Olá!","identified_course_id":"curso_geral_psicologia","psychology_topic":null,"out_of_scope":false}`

	resp, path := newTestInterpreter().Interpret(raw, "oi")
	assert.Equal(t, PathStructured, path)
	assert.Equal(t, "Olá!", resp.Reply)
	require.NotNil(t, resp.IdentifiedCourseID)
	assert.Equal(t, "curso_geral_psicologia", *resp.IdentifiedCourseID)
	assert.Nil(t, resp.PsychologyTopic)
	assert.False(t, resp.OutOfScope)
}

func TestInterpret_CodeFence(t *testing.T) {
	raw := "```json\n{\"reply\":\"Oi!\",\"out_of_scope\":false}\n```"

	resp, path := newTestInterpreter().Interpret(raw, "")
	assert.Equal(t, PathStructured, path)
	assert.Equal(t, "Oi!", resp.Reply)
}

func TestInterpret_FallbackOnEmptyOrMalformed(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"Olá, tudo bem?",
		`{"reply":""}`,
		`{"reply":42}`,
		`{"answer":"Olá"}`,
		`["reply"]`,
		`{"reply":"Oi","psychology_topic":7}`,
		`{"reply":"Oi","out_of_scope":"no"}`,
		`{"reply":"Oi"`,
		`{"reply":"","reply":"A"}`,
	}

	in := newTestInterpreter()
	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			resp, path := in.Interpret(raw, "Quero saber sobre ansiedade")
			assert.Equal(t, PathFallback, path)
			assert.NotEmpty(t, resp.Reply)
			assert.False(t, resp.OutOfScope)
			require.NotNil(t, resp.PsychologyTopic)
			assert.Equal(t, "ansiedade", *resp.PsychologyTopic)
		})
	}
}

func TestInterpret_DuplicateKeysUseValidatedValue(t *testing.T) {
	resp, path := newTestInterpreter().Interpret(`{"reply":"Oi!","reply":"","out_of_scope":false}`, "")
	assert.Equal(t, PathStructured, path)
	assert.Equal(t, "Oi!", resp.Reply)
}

func TestFallback_CustomReply(t *testing.T) {
	in := NewInterpreter("Oi! Já volto.", zap.NewNop())
	resp := in.Fallback("bom dia")
	assert.Equal(t, "Oi! Já volto.", resp.Reply)
	assert.Nil(t, resp.PsychologyTopic)
	assert.Nil(t, resp.IdentifiedCourseID)
}

func TestFallback_CourseAndTopic(t *testing.T) {
	resp := newTestInterpreter().Fallback("Vocês têm curso de TCC para tratar depressão?")
	require.NotNil(t, resp.IdentifiedCourseID)
	assert.Equal(t, "curso_tcc", *resp.IdentifiedCourseID)
	require.NotNil(t, resp.PsychologyTopic)
	assert.Equal(t, "depressao", *resp.PsychologyTopic)
}

func TestClassifyTopic(t *testing.T) {
	tests := []struct {
		in   string
		want Topic
		ok   bool
	}{
		{"Quero saber sobre ansiedade", TopicAnxiety, true},
		{"Tenho crises de PÂNICO", TopicAnxiety, true},
		{"me sinto deprimido, acho que é depressão", TopicDepression, true},
		{"burnout no trabalho", TopicStress, true},
		{"problemas no casamento", TopicRelationships, true},
		{"perdi meu pai, estou de luto", TopicGrief, true},
		{"não consigo dormir, insônia", TopicSleep, true},
		{"Estou muito ansiosa", TopicAnxiety, true},
		{"tive uma experiência traumática", TopicTrauma, true},
		{"qual o horário de atendimento?", "", false},
		{"o sonoplasta absoluto", "", false},
		{"vou lutar por isso", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ClassifyTopic(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyCourse(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"curso de terapia cognitiva", "curso_tcc", true},
		{"psicologia infantil", "curso_psicologia_infantil", true},
		{"quero estudar Freud", "curso_psicanalise", true},
		{"quais cursos vocês têm?", "curso_geral_psicologia", true},
		{"curso de psicologia para crianças", "curso_psicologia_infantil", true},
		{"tcc", "curso_tcc", true},
		{"bom dia", "", false},
		{"preciso de um recurso", "", false},
		{"no meu percurso profissional", "", false},
		{"quero entregar meu TCCzinho", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ClassifyCourse(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
