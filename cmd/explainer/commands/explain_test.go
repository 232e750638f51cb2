package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slidedeck/explainer/internal/explain"
	"github.com/slidedeck/explainer/internal/extract/pptxtest"
)

func TestExplainCommand_WritesJSONNextToDeck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if strings.HasSuffix(req.Messages[1].Content, "Broken") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"explained"}}]}`))
	}))
	defer srv.Close()

	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_BASE_URL", srv.URL)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("EXPLAINER_CONFIG", "")

	dir := t.TempDir()
	deckPath := filepath.Join(dir, "lecture.pptx")
	require.NoError(t, os.WriteFile(deckPath, pptxtest.Build(
		pptxtest.Slide{{"Intro"}},
		pptxtest.Slide{{"Broken"}},
	), 0644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"explain", deckPath, "--log-level", "error"})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(filepath.Join(dir, "lecture.json"))
	require.NoError(t, err)

	var rec []explain.SlideExplanation
	require.NoError(t, json.Unmarshal(data, &rec))
	require.Len(t, rec, 2)
	assert.Equal(t, "explained", rec[0].Explanation)
	assert.True(t, strings.HasPrefix(rec[1].Explanation, "explanation failed: "))
	assert.Contains(t, out.String(), "2 slides, 1 failed")
}
