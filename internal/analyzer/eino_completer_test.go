package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatModel struct {
	resp  *schema.Message
	err   error
	input []*schema.Message
	opts  *model.Options
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.input = input
	f.opts = model.GetCommonOptions(nil, opts...)
	return f.resp, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestEinoCompleter_SendsImageAndPrompt(t *testing.T) {
	fake := &fakeChatModel{resp: schema.AssistantMessage("  【头条新闻1】标题  ", nil)}
	c := NewEinoCompleterWithModel(fake)

	text, err := c.Complete(context.Background(), &Request{
		Model:       "qwen-vl-plus",
		Prompt:      "分析头版",
		ImageURL:    "data:image/jpeg;base64,aGVsbG8=",
		Temperature: 0.1,
		MaxTokens:   2000,
		TopP:        0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, "【头条新闻1】标题", text)

	require.Len(t, fake.input, 1)
	parts := fake.input[0].MultiContent
	require.Len(t, parts, 2)
	assert.Equal(t, "分析头版", parts[0].Text)
	assert.Equal(t, "data:image/jpeg;base64,aGVsbG8=", parts[1].ImageURL.URL)

	require.NotNil(t, fake.opts.Model)
	assert.Equal(t, "qwen-vl-plus", *fake.opts.Model)
	require.NotNil(t, fake.opts.MaxTokens)
	assert.Equal(t, 2000, *fake.opts.MaxTokens)
}

func TestEinoCompleter_MultiContentFallback(t *testing.T) {
	fake := &fakeChatModel{resp: &schema.Message{
		Role: schema.Assistant,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: "第一段"},
			{Type: schema.ChatMessagePartTypeText, Text: "第二段"},
		},
	}}
	text, err := NewEinoCompleterWithModel(fake).Complete(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "第一段\n第二段", text)
}

func TestEinoCompleter_Errors(t *testing.T) {
	fake := &fakeChatModel{resp: schema.AssistantMessage("", nil)}
	_, err := NewEinoCompleterWithModel(fake).Complete(context.Background(), &Request{})
	assert.ErrorIs(t, err, ErrEmptyContent)

	fake = &fakeChatModel{err: errors.New("error, status code: 429, message: Requests rate limit exceeded")}
	_, err = NewEinoCompleterWithModel(fake).Complete(context.Background(), &Request{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 429, se.Code)
	assert.False(t, retryable(err))

	fake = &fakeChatModel{err: errors.New("dial tcp: i/o timeout")}
	_, err = NewEinoCompleterWithModel(fake).Complete(context.Background(), &Request{})
	assert.True(t, retryable(err))
}
