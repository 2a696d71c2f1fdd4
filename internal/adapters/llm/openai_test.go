package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	. "github.com/smartystreets/goconvey/convey"
)

type captured struct {
	auth string
	body map[string]any
}

func fakeOpenAI(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		c.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

const okReply = `{
  "model": "qwen-14b",
  "choices": [{"message": {"role": "assistant", "content": "0.75"}}],
  "usage": {"prompt_tokens": 120, "completion_tokens": 3, "prompt_tokens_details": {"cached_tokens": 100}}
}`

func TestOpenAIComplete(t *testing.T) {
	Convey("Given an OpenAI-compatible server", t, func() {
		ctx := context.Background()
		req := llm.Request{System: "sys", User: "usr", Temperature: 0.1, MaxTokens: 10}

		Convey("A plain model gets temperature and max_tokens", func() {
			srv, got := fakeOpenAI(t, http.StatusOK, okReply)
			c, err := llm.New(ctx, llm.Settings{Provider: "OpenAI", Model: "qwen-14b", APIKey: "k", BaseURL: srv.URL + "/v1"})
			So(err, ShouldBeNil)

			resp, err := c.Complete(ctx, req)
			So(err, ShouldBeNil)
			So(resp.Text, ShouldEqual, "0.75")
			So(resp.Provider, ShouldEqual, "openai")
			So(resp.Model, ShouldEqual, "qwen-14b")
			So(resp.Usage.InputTokens, ShouldEqual, 120)
			So(resp.Usage.CachedInputTokens, ShouldEqual, 100)
			So(resp.Usage.OutputTokens, ShouldEqual, 3)

			So(got.auth, ShouldEqual, "Bearer k")
			So(got.body["temperature"], ShouldEqual, 0.1)
			So(got.body["max_tokens"], ShouldEqual, 10.0)
			So(got.body, ShouldNotContainKey, "max_completion_tokens")
			msgs := got.body["messages"].([]any)
			So(msgs, ShouldHaveLength, 2)
			So(msgs[0].(map[string]any)["role"], ShouldEqual, "system")
		})

		Convey("Deployment quirks rename the length field and drop temperature", func() {
			srv, got := fakeOpenAI(t, http.StatusOK, okReply)
			c, err := llm.New(ctx, llm.Settings{
				Provider: "openai", Model: "qwen-14b", BaseURL: srv.URL + "/v1",
				MaxTokensParam: llm.MaxCompletionTokensParam, OmitTemperature: true,
			})
			So(err, ShouldBeNil)
			_, err = c.Complete(ctx, req)
			So(err, ShouldBeNil)
			So(got.auth, ShouldBeEmpty)
			So(got.body, ShouldNotContainKey, "temperature")
			So(got.body["max_completion_tokens"], ShouldEqual, 10.0)
		})

		Convey("Reasoning models never receive temperature", func() {
			srv, got := fakeOpenAI(t, http.StatusOK, okReply)
			c, err := llm.New(ctx, llm.Settings{Provider: "openai", Model: "o4-mini", BaseURL: srv.URL + "/v1"})
			So(err, ShouldBeNil)
			_, err = c.Complete(ctx, req)
			So(err, ShouldBeNil)
			So(got.body, ShouldNotContainKey, "temperature")
			So(got.body, ShouldContainKey, "max_completion_tokens")
		})

		Convey("HTTP errors wrap ErrTransport", func() {
			srv, _ := fakeOpenAI(t, http.StatusTooManyRequests, `{"error": {"message": "rate limited"}}`)
			c, err := llm.New(ctx, llm.Settings{Provider: "openai", Model: "m", BaseURL: srv.URL + "/v1"})
			So(err, ShouldBeNil)
			_, err = c.Complete(ctx, req)
			So(errors.Is(err, llm.ErrTransport), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "rate limited")
		})

		Convey("An unreachable server wraps ErrTransport", func() {
			srv, _ := fakeOpenAI(t, http.StatusOK, okReply)
			url := srv.URL
			srv.Close()
			c, err := llm.New(ctx, llm.Settings{Provider: "openai", Model: "m", BaseURL: url + "/v1"})
			So(err, ShouldBeNil)
			_, err = c.Complete(ctx, req)
			So(errors.Is(err, llm.ErrTransport), ShouldBeTrue)
		})

		Convey("No choices is an empty response", func() {
			srv, _ := fakeOpenAI(t, http.StatusOK, `{"choices": []}`)
			c, err := llm.New(ctx, llm.Settings{Provider: "openai", Model: "m", BaseURL: srv.URL + "/v1"})
			So(err, ShouldBeNil)
			_, err = c.Complete(ctx, req)
			So(errors.Is(err, llm.ErrEmptyResponse), ShouldBeTrue)
		})
	})
}

func TestSettings(t *testing.T) {
	Convey("Settings are validated before any call", t, func() {
		ctx := context.Background()
		_, err := llm.New(ctx, llm.Settings{Provider: "cohere", Model: "m"})
		So(errors.Is(err, llm.ErrUnknownProvider), ShouldBeTrue)

		_, err = llm.New(ctx, llm.Settings{Provider: "openai"})
		So(errors.Is(err, llm.ErrInvalidSettings), ShouldBeTrue)

		_, err = llm.New(ctx, llm.Settings{Provider: "openai", Model: "m", MaxTokensParam: "max_output"})
		So(errors.Is(err, llm.ErrInvalidSettings), ShouldBeTrue)

		_, err = llm.New(ctx, llm.Settings{Provider: "anthropic", Model: "claude-sonnet-4-5"})
		So(errors.Is(err, llm.ErrInvalidSettings), ShouldBeTrue)
	})

	Convey("Reasoning model detection uses family prefixes", t, func() {
		So(llm.IsReasoningModel("o1"), ShouldBeTrue)
		So(llm.IsReasoningModel("o3-mini"), ShouldBeTrue)
		So(llm.IsReasoningModel("gpt-5-nano"), ShouldBeTrue)
		So(llm.IsReasoningModel("openai/o4-mini"), ShouldBeTrue)
		So(llm.IsReasoningModel("gpt-4o-mini"), ShouldBeFalse)
		So(llm.IsReasoningModel("o1x"), ShouldBeFalse)
	})
}
