package prompts

import (
	"embed"
	"io/fs"
)

//go:embed templates
var templatesFS embed.FS

// Default returns a registry loaded with the built-in templates.
func Default(opts ...RegistryOption) (*Registry, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}
	r := NewRegistry(sub, opts...)
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Prompt template names.
const (
	PartyAnswer          = "party_answer"
	NeutralAnswer        = "neutral_answer"
	ComparisonAnswer     = "comparison_answer"
	AnswerUser           = "answer_user"
	RewriteQuery         = "rewrite_query"
	RewriteQueryNeutral  = "rewrite_query_neutral"
	RewriteUser          = "rewrite_user"
	ClassifyTargets      = "classify_targets"
	ClassifyTargetsUser  = "classify_targets_user"
	ClassifyQuestionType = "classify_question_type"
	ClassifyQuestionUser = "classify_question_type_user"
	Rerank               = "rerank"
	RerankUser           = "rerank_user"
	TitleReplies         = "title_replies"
	TitleRepliesNeutral  = "title_replies_neutral"
	TitleRepliesUser     = "title_replies_user"
)
