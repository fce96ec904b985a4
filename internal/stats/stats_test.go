package stats

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hand struct {
	header   []int
	takes    [4][]interface{}
	discards [4][]interface{}
	result   []interface{}
}

func (h hand) raw() []interface{} {
	out := []interface{}{h.header, []int{25000, 25000, 25000, 25000}, []int{11}, []int{}}
	for seat := 0; seat < 4; seat++ {
		takes, discards := h.takes[seat], h.discards[seat]
		if takes == nil {
			takes = []interface{}{}
		}
		if discards == nil {
			discards = []interface{}{}
		}
		out = append(out, []int{11, 12, 13}, takes, discards)
	}
	return append(out, h.result)
}

func gameJSON(t *testing.T, head map[string]interface{}, hands ...hand) []byte {
	t.Helper()
	game := map[string]interface{}{
		"name": []string{"A", "B", "C", "D"},
	}
	var kyokus []interface{}
	for _, h := range hands {
		kyokus = append(kyokus, h.raw())
	}
	game["log"] = kyokus
	if head != nil {
		game["mjshead"] = head
	}
	data, err := json.Marshal(game)
	require.NoError(t, err)
	return data
}

// sampleHands covers a riichi ron by the dealer, a dama yakuman tsumo, a
// riichi discard that deals in and a draw
func sampleHands() []hand {
	return []hand{
		{
			header:   []int{0, 0, 0},
			takes:    [4][]interface{}{{12}, {}, {"p212121"}, {}},
			discards: [4][]interface{}{{11, "r15"}, {16}, {}, {}},
			result: []interface{}{"和了", []int{13000, -12000, 0, 0},
				[]interface{}{0, 1, 0, "40符3飜12000点", "Riichi(1han)", "Dora(2han)", "Ura Dora(0han)"}},
		},
		{
			header: []int{1, 1, 0},
			result: []interface{}{"和了", []int{-8100, -16100, -8100, 32300},
				[]interface{}{3, 3, 3, "役満16000点∀", "Kokushi Musou(yakuman)"}},
		},
		{
			header:   []int{3, 0, 0},
			discards: [4][]interface{}{{}, {}, {11, "r22"}, {}},
			result: []interface{}{"和了", []int{0, 8000, -8000, 0},
				[]interface{}{1, 2, 1, "満貫8000点", "Tanyao(1han)", "Dora(3han)"}},
		},
		{
			header: []int{3, 1, 0},
			takes:  [4][]interface{}{{"c121314"}, {}, {}, {}},
			result: []interface{}{"流局", []int{0, 0, 0, 0}},
		},
	}
}

func sampleGame(t *testing.T) []byte {
	return gameJSON(t, map[string]interface{}{"start_time": 1000, "end_time": 1600}, sampleHands()...)
}

func collect(t *testing.T, games ...[]byte) *Collector {
	t.Helper()
	c := NewCollector()
	for _, g := range games {
		log, err := ParseLog(g)
		require.NoError(t, err)
		require.NoError(t, c.Add(log))
	}
	return c
}

func TestCollectorCounters(t *testing.T) {
	c := collect(t, sampleGame(t))

	assert.Equal(t, PlayerInfo{
		KyokuCount:       4,
		AgariCount:       1,
		RiichiCount:      1,
		RiichiAgariCount: 1,
		OpenCount:        1,
		TotalAgariScore:  13000,
		SecondsPlayed:    600,
	}, *c.Players["A"])

	assert.Equal(t, PlayerInfo{
		KyokuCount:       4,
		AgariCount:       1,
		DealinCount:      1,
		DamaAgariCount:   1,
		TotalAgariScore:  8000,
		TotalDealinScore: 12000,
		SecondsPlayed:    600,
	}, *c.Players["B"])

	assert.Equal(t, PlayerInfo{
		KyokuCount:            4,
		DealinCount:           1,
		OpenCount:             1,
		TotalDealinScore:      8000,
		DamaDealinCount:       1,
		DamaManganDealinCount: 1,
		SecondsPlayed:         600,
	}, *c.Players["C"])

	assert.Equal(t, PlayerInfo{
		KyokuCount:      4,
		AgariCount:      1,
		DamaAgariCount:  1,
		TotalAgariScore: 32300,
		YakumanCount:    1,
		SanbaimanCount:  1,
		BaimanCount:     1,
		SecondsPlayed:   600,
	}, *c.Players["D"])
}

func TestCollectorYakuSkipsBlankUraDora(t *testing.T) {
	c := collect(t, sampleGame(t))

	assert.Equal(t, map[string]int{"Riichi": 1, "Dora": 1}, c.Yaku["A"])
	assert.Equal(t, map[string]int{"Tanyao": 1, "Dora": 1}, c.Yaku["B"])
	assert.NotContains(t, c.Yaku, "C")
	assert.Equal(t, []string{"Dora", "Kokushi Musou", "Riichi", "Tanyao"}, c.YakuOrder())
}

func TestCollectorAccumulatesAcrossLogs(t *testing.T) {
	untimed := gameJSON(t, nil, sampleHands()[:2]...)
	c := collect(t, sampleGame(t), untimed)

	assert.Equal(t, 6, c.Players["A"].KyokuCount)
	assert.Equal(t, 2, c.Players["A"].RiichiAgariCount)
	assert.Equal(t, int64(600), c.Players["A"].SecondsPlayed)
	assert.Equal(t, 2, c.Players["D"].YakumanCount)
}

func TestRanking(t *testing.T) {
	c := NewCollector()
	for name, kyoku := range map[string]int{"ace": 150, "bob": 101, "carl": 100, "ashlen_bot": 400, "dan": 150} {
		c.Players[name] = &PlayerInfo{KyokuCount: kyoku}
	}

	assert.Equal(t, []string{"ace", "dan", "bob"}, c.Ranking(100, []string{"ashlen"}))
	assert.Equal(t, []string{"ashlen_bot", "ace", "dan", "bob", "carl"}, c.Ranking(0, []string{""}))
}

func TestParseLogErrors(t *testing.T) {
	bad := sampleHands()
	bad[0].result = []interface{}{"和了", []int{13000, -12000, 0, 0},
		[]interface{}{0, 1, 0, "12000点", "Riichi"}}

	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("<html>")},
		{"no names", []byte(`{"log": []}`)},
		{"yaku without count", gameJSON(t, nil, bad...)},
		{"missing end time", gameJSON(t, map[string]interface{}{"start_time": 1000}, sampleHands()...)},
		{"short kyoku", []byte(`{"name": ["A","B","C","D"], "log": [[[0,0,0]]]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := ParseLog(tt.data)
			if err == nil {
				err = NewCollector().Add(log)
			}
			assert.ErrorIs(t, err, ErrInvalidLog)
		})
	}
}

func TestAddInvalidLogRecordsNothing(t *testing.T) {
	bad := sampleHands()
	bad[3].result = []interface{}{"和了", []int{0, 0}, []interface{}{0, 1, 0, "", "Dora(1han)"}}
	log, err := ParseLog(gameJSON(t, nil, bad...))
	require.NoError(t, err)

	c := NewCollector()
	require.Error(t, c.Add(log))
	assert.Empty(t, c.Players)
	assert.Empty(t, c.Yaku)
}

func TestReport(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "downloads")
	require.NoError(t, os.Mkdir(logDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "abc-123.json"), sampleGame(t), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "def-456.json.part"), []byte("{"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(logDir, "nested"), 0755))

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.StatsConfig{
		LogDir:       logDir,
		InfoOutput:   filepath.Join(dir, "info.csv"),
		YakuOutput:   filepath.Join(dir, "yaku.csv"),
		MinKyoku:     3,
		ExcludeNames: []string{"C"},
	}

	n, err := Report(cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	info, err := os.ReadFile(cfg.InfoOutput)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(info)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "name,"+strings.Join(Headers, ","), lines[0])
	assert.Equal(t, "A,4,1,0,1,1,0,0,1,13000,0,0,0,0,0,0,600", lines[1])
	assert.True(t, strings.HasPrefix(lines[3], "D,4,1,"))

	yaku, err := os.ReadFile(cfg.YakuOutput)
	require.NoError(t, err)
	assert.Equal(t, "name,Dora,Kokushi Musou,Riichi,Tanyao\nA,1,0,1,0\nB,1,0,0,1\nD,0,1,0,0\n", string(yaku))
}

func TestReportMissingDirectory(t *testing.T) {
	_, err := Report(&config.StatsConfig{LogDir: filepath.Join(t.TempDir(), "missing")}, logrus.New())
	assert.Error(t, err)
}
