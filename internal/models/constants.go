package models

const (
	ContextSeparator = "\n---\n"

	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultSeparator    = "\n"
	DefaultTopK         = 4
)

var (
	AnswerPromptTemplate = `You are a helpful assistant answering questions about the documents the user uploaded.
Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

<context>
%s
</context>
`

	CondensePromptTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
%s
Follow Up Input: %s
Standalone question:`
)
