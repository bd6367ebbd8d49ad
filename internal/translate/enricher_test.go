package translate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/storefront-importer/internal/models"
	"github.com/maltedev/storefront-importer/internal/ratelimit"
)

// scriptedModel answers product prompts with product and batch prompts by
// running translateItem over the JSON array in the prompt.
type scriptedModel struct {
	mu            sync.Mutex
	product       []string
	translateItem func(string) (string, bool)
	batchErr      func(items []string) error
	batchSizes    []int
}

func (s *scriptedModel) Generate(ctx context.Context, model, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.HasPrefix(prompt, "You are a product localisation assistant") {
		if len(s.product) == 0 {
			return "", errors.New("no scripted product reply")
		}
		reply := s.product[0]
		if len(s.product) > 1 {
			s.product = s.product[1:]
		}
		return reply, nil
	}

	start := strings.LastIndex(prompt, "\n[")
	var items []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(prompt[start:])), &items); err != nil {
		return "", err
	}
	s.batchSizes = append(s.batchSizes, len(items))

	if s.batchErr != nil {
		if err := s.batchErr(items); err != nil {
			return "", err
		}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if v, ok := s.translateItem(item); ok {
			out = append(out, v)
		}
	}
	data, _ := json.Marshal(out)
	return string(data), nil
}

var dictionary = map[string]string{
	"颜色":   "색상",
	"尺码":   "사이즈",
	"黑色":   "블랙",
	"白色":   "화이트",
	"S":    "S",
	"M":    "M",
	"很好看":  "예뻐요",
	"质量不错": "품질 좋아요",
}

func lookup(s string) (string, bool) {
	v, ok := dictionary[s]
	return v, ok
}

func newTestEnricher(m Model, chunkSize int) *Enricher {
	cfg := DefaultEnricherConfig()
	cfg.ChunkSize = chunkSize
	return NewEnricher(NewClient(m, testClientConfig(), &ratelimit.NoDelay{}), cfg)
}

func testCapture() *models.RawProductCapture {
	return &models.RawProductCapture{
		SourceURL:       "https://detail.1688.com/offer/123456.html",
		Title:           "夏季新款男士T恤",
		DescriptionText: "纯棉面料",
		Attributes:      map[string]string{"材质": "棉"},
		OptionAxes:      []string{"颜色", "尺码"},
		SKUEntries: []models.SKUEntry{
			{Key: "黑色>S", PriceText: "25.00"},
			{Key: "黑色>M", PriceText: "25.00"},
			{Key: "白色&gt;S", PriceText: "26.00"},
		},
		Reviews: []models.Review{
			{Author: "a***1", Text: "很好看"},
			{Author: "b***2", Text: "质量不错"},
		},
	}
}

func TestEnricher_Enrich(t *testing.T) {
	ctx := context.Background()

	t.Run("translates product, labels and reviews", func(t *testing.T) {
		m := &scriptedModel{
			product: []string{`{
				"name": "여름 남성 티셔츠 新款",
				"description": "면 100% 소재",
				"attributes": {"소재": "면", "产地": "广州"},
				"synonyms": ["반팔티", "반팔티", "티셔츠"],
				"tags": ["여름", "남성"],
				"category": "남성 의류",
				"is_restricted": false
			}`},
			translateItem: lookup,
		}

		e := newTestEnricher(m, 20)
		got, err := e.Enrich(ctx, testCapture())
		require.NoError(t, err)

		assert.Equal(t, "여름 남성 티셔츠", got.NameTranslated)
		assert.Equal(t, "면 100% 소재", got.DescriptionTranslated)
		assert.Equal(t, map[string]string{"소재": "면"}, got.AttributeTable)
		assert.Equal(t, []string{"반팔티", "티셔츠"}, got.Marketing.Synonyms)
		assert.Equal(t, "남성 의류", got.Marketing.CategorySuggestion)
		assert.False(t, got.IsRestricted)

		assert.Equal(t, map[string]string{
			"颜色": "색상",
			"尺码": "사이즈",
			"黑色": "블랙",
			"白色": "화이트",
			"S":  "S",
			"M":  "M",
		}, got.Labels)

		require.Len(t, got.Reviews, 2)
		assert.Equal(t, "예뻐요", got.Reviews[0].TranslatedText)
		assert.Equal(t, "很好看", got.Reviews[0].Text)
		assert.Equal(t, "a***1", got.Reviews[0].Author)
	})

	t.Run("placeholder name is retried", func(t *testing.T) {
		m := &scriptedModel{
			product: []string{
				`{"name": "Name Unavailable"}`,
				`{"name": "新款"}`,
				`{"name": "여름 티셔츠"}`,
			},
			translateItem: lookup,
		}

		got, err := newTestEnricher(m, 20).Enrich(ctx, testCapture())
		require.NoError(t, err)
		assert.Equal(t, "여름 티셔츠", got.NameTranslated)
	})

	t.Run("placeholder on every attempt skips the item", func(t *testing.T) {
		m := &scriptedModel{
			product:       []string{`{"name": "상품명 없음"}`},
			translateItem: lookup,
		}

		_, err := newTestEnricher(m, 20).Enrich(ctx, testCapture())
		assert.ErrorIs(t, err, ErrExhausted)
	})
}

func TestEnricher_TranslateBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("chunks by size", func(t *testing.T) {
		m := &scriptedModel{translateItem: func(s string) (string, bool) { return "t-" + s, true }}
		e := newTestEnricher(m, 2)

		got, err := e.TranslateBatch(ctx, []string{"a", "b", "c", "a", ""})
		require.NoError(t, err)

		assert.Equal(t, map[string]string{"a": "t-a", "b": "t-b", "c": "t-c"}, got)
		assert.Equal(t, []int{2, 1}, m.batchSizes)
	})

	t.Run("length mismatch bisects and drops the bad item", func(t *testing.T) {
		m := &scriptedModel{translateItem: func(s string) (string, bool) {
			if s == "bad" {
				return "", false
			}
			return "t-" + s, true
		}}
		e := newTestEnricher(m, 4)

		got, err := e.TranslateBatch(ctx, []string{"a", "bad", "c", "d"})
		require.NoError(t, err)

		assert.Equal(t, map[string]string{"a": "t-a", "c": "t-c", "d": "t-d"}, got)
		// [a bad c d] -> [a bad] -> [a] [bad], then [c d]
		assert.Equal(t, []int{4, 2, 1, 1, 2}, m.batchSizes)
	})

	t.Run("timed out chunk is not bisected", func(t *testing.T) {
		m := &scriptedModel{
			translateItem: func(s string) (string, bool) { return s, true },
			batchErr: func(items []string) error {
				return context.DeadlineExceeded
			},
		}
		e := newTestEnricher(m, 4)

		got, err := e.TranslateBatch(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, []int{3}, m.batchSizes)
	})

	t.Run("cancellation stops the batch", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		m := &scriptedModel{
			translateItem: func(s string) (string, bool) { return s, true },
			batchErr: func(items []string) error {
				cancel()
				return context.Canceled
			},
		}
		e := newTestEnricher(m, 4)

		_, err := e.TranslateBatch(cctx, []string{"a", "b"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStripSourceScript(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"블랙 黑色", "블랙"},
		{"ＸＬ　사이즈", "XL 사이즈"},
		{"【특가】 티셔츠", "특가 티셔츠"},
		{"纯棉", ""},
		{"  plain   text ", "plain text"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripSourceScript(tt.in), tt.in)
	}

	assert.True(t, HasSourceScript("블랙 黑色"))
	assert.False(t, HasSourceScript("블랙"))
}

func TestIsPlaceholder(t *testing.T) {
	for _, name := range []string{"", "  ", "Name Unavailable", "unknown", "N/A", "상품명 없음", "Translation failed!"} {
		assert.True(t, IsPlaceholder(name), name)
	}
	for _, name := range []string{"여름 티셔츠", "Summer T-shirt"} {
		assert.False(t, IsPlaceholder(name), name)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "黑色", truncate("黑色连衣裙", 2))
	assert.Equal(t, "abc", truncate(" abc ", 10))
}
