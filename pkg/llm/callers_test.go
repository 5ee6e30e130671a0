package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/llm"
)

var _ = Describe("NewCaller", func() {
	It("rejects an unsupported provider", func() {
		_, err := llm.NewCaller(llm.Config{Provider: "carrier-pigeon"})
		Expect(err).To(HaveOccurred())
	})

	It("builds a caller for each supported provider", func() {
		for _, provider := range []string{"openai", "anthropic", "ollama"} {
			call, err := llm.NewCaller(llm.Config{Provider: provider})
			Expect(err).NotTo(HaveOccurred())
			Expect(call).NotTo(BeNil())
		}
	})
})

var _ = Describe("ollama caller", func() {
	ctx := context.Background()

	It("sends the prompt and returns the message content", func() {
		var gotPath string
		var gotBody map[string]any

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			Expect(json.NewDecoder(r.Body).Decode(&gotBody)).To(Succeed())

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"message": {"content": "{\"facts\": []}"}, "done": true}`))
		}))
		defer server.Close()

		call, err := llm.NewCaller(llm.Config{
			Provider: "ollama",
			Model:    "llama3.2",
			BaseURL:  server.URL,
		})
		Expect(err).NotTo(HaveOccurred())

		response, err := call(ctx, "extract facts")
		Expect(err).NotTo(HaveOccurred())
		Expect(response).To(Equal(`{"facts": []}`))

		Expect(gotPath).To(Equal("/api/chat"))
		Expect(gotBody["model"]).To(Equal("llama3.2"))
		Expect(gotBody["stream"]).To(Equal(false))

		messages, ok := gotBody["messages"].([]any)
		Expect(ok).To(BeTrue())
		Expect(messages).To(HaveLen(1))
	})

	It("wraps a non-success status in ErrTransport", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer server.Close()

		call, err := llm.NewCaller(llm.Config{Provider: "ollama", BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = call(ctx, "prompt")
		Expect(err).To(MatchError(llm.ErrTransport))
	})

	It("wraps an unreachable server in ErrTransport", func() {
		call, err := llm.NewCaller(llm.Config{Provider: "ollama", BaseURL: "http://127.0.0.1:1"})
		Expect(err).NotTo(HaveOccurred())

		_, err = call(ctx, "prompt")
		Expect(err).To(MatchError(llm.ErrTransport))
	})
})

var _ = Describe("openai caller", func() {
	ctx := context.Background()

	It("returns the first choice's content", func() {
		var gotAuth string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			Expect(r.URL.Path).To(Equal("/v1/chat/completions"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"choices": [{"message": {"content": "{\"memory\": []}"}}]}`))
		}))
		defer server.Close()

		call, err := llm.NewCaller(llm.Config{
			Provider: "openai",
			APIKey:   "test-key",
			BaseURL:  server.URL,
		})
		Expect(err).NotTo(HaveOccurred())

		response, err := call(ctx, "reconcile")
		Expect(err).NotTo(HaveOccurred())
		Expect(response).To(Equal(`{"memory": []}`))
		Expect(gotAuth).To(Equal("Bearer test-key"))
	})
})

var _ = Describe("anthropic caller", func() {
	ctx := context.Background()

	It("returns the first content block's text", func() {
		var gotKey string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("x-api-key")
			Expect(r.URL.Path).To(Equal("/v1/messages"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"content": [{"type": "text", "text": "{\"facts\": [\"User likes tea\"]}"}]}`))
		}))
		defer server.Close()

		call, err := llm.NewCaller(llm.Config{
			Provider: "anthropic",
			APIKey:   "test-key",
			BaseURL:  server.URL,
		})
		Expect(err).NotTo(HaveOccurred())

		response, err := call(ctx, "extract")
		Expect(err).NotTo(HaveOccurred())
		Expect(response).To(Equal(`{"facts": ["User likes tea"]}`))
		Expect(gotKey).To(Equal("test-key"))
	})
})
