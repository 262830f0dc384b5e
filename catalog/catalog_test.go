package catalog

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]Entity{{Name: "Gremio"}, {Name: "Gremio"}})
	require.Error(t, err)

	_, err = New([]Entity{{Name: " "}})
	require.Error(t, err)
}

func TestFindIgnoresCase(t *testing.T) {
	c := Fallback()

	e, err := c.Find("gReMiO")
	require.NoError(t, err)
	assert.Equal(t, "Gremio", e.Name)
	assert.Equal(t, "Gremio", e.ID())

	_, err = c.Find("Pahn")
	require.ErrorIs(t, err, ErrNotFound)

	assert.True(t, c.Contains("Viktor"))
	assert.False(t, c.Contains("viktor"))
}

func TestAllReturnsCopy(t *testing.T) {
	c := Fallback()

	all := c.All()
	all[0].Name = "changed"

	e, ok := c.Get("Tir McDohl")
	require.True(t, ok)
	assert.Equal(t, "Tir McDohl", e.Name)
}

func TestSample(t *testing.T) {
	c := Fallback()
	rng := rand.New(rand.NewPCG(1, 2))

	got := c.Sample(6, rng)
	require.Len(t, got, 3)

	seen := map[string]bool{}
	for _, e := range got {
		assert.False(t, seen[e.Name], "duplicate %s", e.Name)
		seen[e.Name] = true
	}

	assert.Len(t, c.Sample(2, rng), 2)
	assert.Empty(t, c.Sample(0, rng))
}

func TestMerge(t *testing.T) {
	characters := []byte(`{"Viktor": "viktor.png", "Gremio": "gremio.png", "Pahn": 7, "Cleo": "cleo.png"}`)
	recruitment := []byte(`{
		"Gremio": "Joins at the start.",
		"Cleo": {"recruitment": "Joins with Gremio.", "image": "cleo_alt.png"}
	}`)

	entities, err := Merge(characters, recruitment)
	require.NoError(t, err)
	require.Len(t, entities, 4)

	assert.Equal(t, Entity{Number: 1, Name: "Viktor", ImageURL: "/static/img/viktor.png", RecruitmentInfo: DefaultRecruitmentInfo}, entities[0])
	assert.Equal(t, Entity{Number: 2, Name: "Gremio", ImageURL: "/static/img/gremio.png", RecruitmentInfo: "Joins at the start."}, entities[1])
	assert.Equal(t, "/static/img/Pahn.png", entities[2].ImageURL)
	assert.Equal(t, Entity{Number: 4, Name: "Cleo", ImageURL: "/static/img/cleo_alt.png", RecruitmentInfo: "Joins with Gremio."}, entities[3])
}

func TestMergeRejectsNonObject(t *testing.T) {
	_, err := Merge([]byte(`["Gremio"]`), nil)
	require.Error(t, err)
}

func TestWriteAndLoadFile(t *testing.T) {
	dir := t.TempDir()
	entities := Fallback().All()

	for _, name := range []string{"characters.json", "characters.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, entities))

		got, err := LoadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, entities, got, name)
	}
}

func TestLoadPrefersProcessed(t *testing.T) {
	dir := t.TempDir()
	processed := filepath.Join(dir, "processed.json")
	require.NoError(t, WriteFile(processed, []Entity{{Number: 1, Name: "Pahn", ImageURL: "/static/img/pahn.png"}}))

	c := Load(Sources{Processed: processed}, zap.NewNop())
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains("Pahn"))
}

func TestLoadMergesWhenProcessedMissing(t *testing.T) {
	dir := t.TempDir()
	characters := filepath.Join(dir, "characters.json")
	require.NoError(t, os.WriteFile(characters, []byte(`{"Pahn": "pahn.png", "Cleo": "cleo.png"}`), 0o644))

	c := Load(Sources{
		Processed:   filepath.Join(dir, "missing.json"),
		Characters:  characters,
		Recruitment: filepath.Join(dir, "missing-recruitment.json"),
	}, zap.NewNop())

	assert.Equal(t, 2, c.Len())
	e, err := c.Find("cleo")
	require.NoError(t, err)
	assert.Equal(t, DefaultRecruitmentInfo, e.RecruitmentInfo)
}

func TestLoadFallsBack(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{not json`), 0o644))

	c := Load(Sources{Processed: broken, Characters: broken}, zap.NewNop())
	assert.Equal(t, Fallback().All(), c.All())
}
