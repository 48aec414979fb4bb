package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"neuroaid-diagnostic-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorePostsTallyAndDecodesVerdict(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, DefaultScorePath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"riskLevel":"High Risk","dominantType":"phonological","avgTime":1.25,"tips":"Phonics-based, multisensory reading programs."}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL + "/"})
	summary, err := client.Score(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.ResultSummary{
		RiskLevel:    "High Risk",
		DominantType: "phonological",
		AvgTime:      1.25,
		Tips:         "Phonics-based, multisensory reading programs.",
	}, summary)
	assert.EqualValues(t, 9, got["checklistYesCount"])
	assert.Len(t, got["reactionTimes"], 4)
	scores, ok := got["scores"].(map[string]any)
	require.True(t, ok, "category scores travel under the scores key")
	assert.EqualValues(t, 1, scores["phonological"])
}

func TestScoreRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Score(context.Background(), sampleRequest())
	require.ErrorIs(t, err, domain.ErrScoringFailed)
	assert.Contains(t, err.Error(), "status 500")
}

func TestScoreRejectsMalformedBodies(t *testing.T) {
	cases := map[string]string{
		"not json":         `<html>oops</html>`,
		"missing risk":     `{"dominantType":"visual","avgTime":1}`,
		"missing dominant": `{"riskLevel":"Low Risk","avgTime":1}`,
		"negative time":    `{"riskLevel":"Low Risk","dominantType":"visual","avgTime":-1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{BaseURL: srv.URL}).Score(context.Background(), sampleRequest())
			assert.ErrorIs(t, err, domain.ErrMalformedScore)
		})
	}
}

func TestScoreHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Score(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, domain.ErrScoringFailed)
}

func TestSaveAssessmentSendsRecord(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/custom/save", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"xp_awarded":20}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, SavePath: "/custom/save"})
	record := domain.NewAssessmentRecord(sampleRequest(), domain.ResultSummary{
		RiskLevel: "High Risk", DominantType: "phonological", AvgTime: 1.25, Tips: "tips",
	})
	require.NoError(t, client.SaveAssessment(context.Background(), record))

	assert.Equal(t, "assessment", got["kind"])
	assert.Equal(t, "High Risk", got["riskLevel"])
	assert.Equal(t, "phonological", got["dominantType"])
	assert.EqualValues(t, 9, got["checklistYesCount"])
	assert.Contains(t, got, "scores")
	assert.Contains(t, got, "reactionTimes")
}

func TestSaveAssessmentErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient(Config{BaseURL: srv.URL}).SaveAssessment(context.Background(), domain.AssessmentRecord{Kind: domain.AssessmentKind})
	assert.ErrorIs(t, err, domain.ErrScoringFailed)
}

func sampleRequest() domain.ScoreRequest {
	return domain.ScoreRequest{
		Scores: map[domain.Category]int{
			domain.CategoryPhonological: 1,
			domain.CategorySurface:      0,
			domain.CategoryVisual:       1,
			domain.CategoryAuditory:     0,
		},
		ReactionTimes:     []int64{1500, 2300, 4100, 800},
		ChecklistYesCount: 9,
	}
}
