// Package stats aggregates per-player counters and yaku tallies over saved
// game logs and writes them as CSV reports.
package stats

import (
	"fmt"
	"strings"
)

// Normalized point thresholds, in non-dealer terms
const (
	yakumanPoints   = 32000
	sanbaimanPoints = 24000
	baimanPoints    = 16000
	manganDealin    = -8000
)

const uraDora = "Ura Dora"

// PlayerInfo holds one player's counters across every processed log
type PlayerInfo struct {
	KyokuCount            int
	AgariCount            int
	DealinCount           int
	RiichiCount           int
	RiichiAgariCount      int
	DamaAgariCount        int
	OpenAgariCount        int
	OpenCount             int
	TotalAgariScore       int
	TotalDealinScore      int
	YakumanCount          int
	SanbaimanCount        int
	BaimanCount           int
	DamaDealinCount       int
	DamaManganDealinCount int
	SecondsPlayed         int64
}

// Headers are the info.csv columns after the name
var Headers = []string{
	"kyoku_count",
	"agari_count",
	"dealin_count",
	"riichi_count",
	"riichi_agari_count",
	"dama_agari_count",
	"open_agari_count",
	"open_count",
	"total_agari_score",
	"total_dealin_score",
	"yakuman_count",
	"sanbaiman_count",
	"baiman_count",
	"dama_dealin_count",
	"dama_mangan_dealin_count",
	"seconds_played",
}

// Values returns the counters in Headers order
func (p *PlayerInfo) Values() []string {
	values := []int64{
		int64(p.KyokuCount),
		int64(p.AgariCount),
		int64(p.DealinCount),
		int64(p.RiichiCount),
		int64(p.RiichiAgariCount),
		int64(p.DamaAgariCount),
		int64(p.OpenAgariCount),
		int64(p.OpenCount),
		int64(p.TotalAgariScore),
		int64(p.TotalDealinScore),
		int64(p.YakumanCount),
		int64(p.SanbaimanCount),
		int64(p.BaimanCount),
		int64(p.DamaDealinCount),
		int64(p.DamaManganDealinCount),
		p.SecondsPlayed,
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%d", v)
	}
	return out
}

// Collector is a single accumulator for every player across every log
type Collector struct {
	Players map[string]*PlayerInfo
	Yaku    map[string]map[string]int
}

func NewCollector() *Collector {
	return &Collector{
		Players: make(map[string]*PlayerInfo),
		Yaku:    make(map[string]map[string]int),
	}
}

func (c *Collector) player(name string) *PlayerInfo {
	info, ok := c.Players[name]
	if !ok {
		info = &PlayerInfo{}
		c.Players[name] = info
	}
	return info
}

// Add folds one log into the counters. Nothing is recorded when the log turns
// out to be invalid.
func (c *Collector) Add(log *Log) error {
	duration, timed, err := log.Duration()
	if err != nil {
		return err
	}

	kyokus := make([]*Kyoku, len(log.Kyokus))
	for i := range log.Kyokus {
		k, err := log.ParseKyoku(i)
		if err != nil {
			return err
		}
		for _, a := range k.Agari {
			if len(a.Deltas) != log.Seats() {
				return fmt.Errorf("%w: kyoku %d has %d deltas for %d seats", ErrInvalidLog, i, len(a.Deltas), log.Seats())
			}
			for _, y := range a.Yaku {
				if !strings.Contains(y, "(") {
					return fmt.Errorf("%w: yaku %q has no count", ErrInvalidLog, y)
				}
			}
		}
		kyokus[i] = k
	}

	for _, k := range kyokus {
		for _, a := range k.Agari {
			tally := c.Yaku[log.Names[a.Who]]
			if tally == nil {
				tally = make(map[string]int)
				c.Yaku[log.Names[a.Who]] = tally
			}
			for _, y := range a.Yaku {
				name, count, _ := strings.Cut(y, "(")
				if name == uraDora && strings.HasPrefix(count, "0") {
					continue
				}
				tally[name]++
			}
		}
	}

	for seat, name := range log.Names {
		info := c.player(name)
		if timed {
			info.SecondsPlayed += duration
		}
		for _, k := range kyokus {
			addKyoku(info, seat, log.Seats(), k)
		}
	}

	return nil
}

// addKyoku updates seat's counters for one hand
func addKyoku(info *PlayerInfo, seat, seats int, k *Kyoku) {
	info.KyokuCount++

	kyotaku := k.Kyotaku
	for s := 0; s < seats; s++ {
		if riichiAccepted(k, s) {
			kyotaku++
		}
	}
	if riichiAccepted(k, seat) {
		info.RiichiCount++
	}

	for _, a := range k.Agari {
		delta := a.Deltas[seat]
		normalized := delta - k.Honba*300 - kyotaku*1000
		if k.Index%seats == seat {
			normalized = normalized * 2 / 3
		}

		switch {
		case a.Who == seat:
			info.AgariCount++
			info.TotalAgariScore += delta
			switch {
			case k.Open[seat]:
				info.OpenAgariCount++
			case k.RiichiDeclared[seat]:
				info.RiichiAgariCount++
			default:
				info.DamaAgariCount++
			}
			if normalized >= yakumanPoints {
				info.YakumanCount++
			}
			if normalized >= sanbaimanPoints {
				info.SanbaimanCount++
			}
			if normalized >= baimanPoints {
				info.BaimanCount++
			}

		case a.From == seat:
			info.DealinCount++
			info.TotalDealinScore += -delta
			if !k.RiichiDeclared[a.Who] && !k.Open[a.Who] {
				info.DamaDealinCount++
				if normalized <= manganDealin {
					info.DamaManganDealinCount++
				}
			}
		}
	}

	if k.Open[seat] {
		info.OpenCount++
	}
}

// riichiAccepted reports whether seat's riichi stick was placed. A riichi
// discard that deals in is never accepted.
func riichiAccepted(k *Kyoku, seat int) bool {
	if !k.RiichiDeclared[seat] {
		return false
	}
	if k.RiichiOnLast[seat] {
		for _, a := range k.Agari {
			if a.From == seat && a.Who != seat {
				return false
			}
		}
	}
	return true
}
