package glossary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-translator/internal/store"
	"novel-translator/internal/types"
)

func newService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st)
}

func TestLookupGroupsByCategory(t *testing.T) {
	s := newService(t)

	items := []types.GlossaryItem{
		{SourceTerm: "李明", TargetTerm: "Ли Мин", Category: types.CategoryCharacter},
		{SourceTerm: "青云山", TargetTerm: "гора Цинъюнь", Category: types.CategoryLocation},
		{SourceTerm: "灵气", TargetTerm: "духовная энергия", Category: types.CategoryTerm},
		{SourceTerm: "御剑术", TargetTerm: "полёт на мече", Category: types.CategoryTechnique},
		{SourceTerm: "玉佩", TargetTerm: "нефритовый кулон", Category: types.CategoryArtifact},
	}
	for _, item := range items {
		require.NoError(t, s.Upsert(item))
	}

	g, err := s.Lookup()
	require.NoError(t, err)
	assert.Equal(t, 5, g.Size())
	assert.Equal(t, "Ли Мин", g.Characters["李明"])
	assert.Equal(t, "гора Цинъюнь", g.Locations["青云山"])
	assert.Equal(t, "духовная энергия", g.Terms["灵气"])
	assert.Equal(t, "полёт на мече", g.Techniques["御剑术"])
	assert.Equal(t, "нефритовый кулон", g.Artifacts["玉佩"])
}

func TestUpsertFirstWins(t *testing.T) {
	s := newService(t)

	require.NoError(t, s.Upsert(types.GlossaryItem{SourceTerm: "灵气", TargetTerm: "ци", Category: types.CategoryTerm}))
	require.NoError(t, s.Upsert(types.GlossaryItem{SourceTerm: "灵气", TargetTerm: "мана", Category: types.CategoryTerm}))

	g, err := s.Lookup()
	require.NoError(t, err)
	assert.Equal(t, "ци", g.Terms["灵气"])
}

func TestUpsertUnknownCategoryFallsBack(t *testing.T) {
	s := newService(t)

	require.NoError(t, s.Upsert(types.GlossaryItem{SourceTerm: "词", TargetTerm: "слово", Category: "monster"}))
	g, err := s.Lookup()
	require.NoError(t, err)
	assert.Equal(t, "слово", g.Terms["词"])
}

func TestValidateCandidate(t *testing.T) {
	s := newService(t)
	original := "李明站在青云山脚下，the mountain loomed above."
	translated := "Ли Мин стоял у подножия горы Цинъюнь."

	tests := []struct {
		name string
		item types.GlossaryItem
		want bool
	}{
		{"valid", types.GlossaryItem{SourceTerm: "李明", TargetTerm: "Ли Мин"}, true},
		{"stopword", types.GlossaryItem{SourceTerm: "the", TargetTerm: "гора"}, false},
		{"too short", types.GlossaryItem{SourceTerm: "山", TargetTerm: "гора"}, false},
		{"missing from source", types.GlossaryItem{SourceTerm: "不存在", TargetTerm: "гора"}, false},
		{"empty target", types.GlossaryItem{SourceTerm: "李明", TargetTerm: " "}, false},
		// A target the model never actually used must not become the
		// canonical rendering.
		{"target missing from translation", types.GlossaryItem{SourceTerm: "李明", TargetTerm: "Выдуманное Имя"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.ValidateCandidate(tt.item, original, translated))
		})
	}
}
