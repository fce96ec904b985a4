package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const resultAgari = "和了"

var ErrInvalidLog = errors.New("invalid log")

// Log is a saved game record in tenhou format
type Log struct {
	Names  []string          `json:"name"`
	Kyokus []json.RawMessage `json:"log"`
	Head   *Head             `json:"mjshead"`
}

// Head carries the game timestamps, in unix seconds
type Head struct {
	StartTime *int64 `json:"start_time"`
	EndTime   *int64 `json:"end_time"`
}

// Kyoku is one hand of a game, reduced to what the counters need
type Kyoku struct {
	Index   int
	Honba   int
	Kyotaku int
	// per seat
	RiichiDeclared []bool
	RiichiOnLast   []bool
	Open           []bool
	Agari          []Agari
}

// Agari is one win. Who == From for tsumo.
type Agari struct {
	Who    int
	From   int
	Deltas []int
	Yaku   []string
}

// ParseLog decodes a tenhou JSON log
func ParseLog(data []byte) (*Log, error) {
	var log Log
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLog, err)
	}
	if len(log.Names) == 0 {
		return nil, fmt.Errorf("%w: no player names", ErrInvalidLog)
	}
	return &log, nil
}

// Duration returns the game length in seconds, false when the log carries no
// timestamps
func (l *Log) Duration() (int64, bool, error) {
	if l.Head == nil {
		return 0, false, nil
	}
	if l.Head.StartTime == nil || l.Head.EndTime == nil {
		return 0, false, fmt.Errorf("%w: mjshead without start_time or end_time", ErrInvalidLog)
	}
	return *l.Head.EndTime - *l.Head.StartTime, true, nil
}

// Seats returns the number of players in the game
func (l *Log) Seats() int {
	return len(l.Names)
}

// ParseKyoku decodes hand i of the log.
//
// A hand is [[kyoku, honba, kyotaku], scores, dora, ura, then haipai, takes
// and discards for every seat, then the result].
func (l *Log) ParseKyoku(i int) (*Kyoku, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(l.Kyokus[i], &raw); err != nil {
		return nil, fmt.Errorf("%w: kyoku %d: %v", ErrInvalidLog, i, err)
	}

	seats := l.Seats()
	if len(raw) < 4+3*seats+1 {
		return nil, fmt.Errorf("%w: kyoku %d has %d entries", ErrInvalidLog, i, len(raw))
	}

	var header []int
	if err := json.Unmarshal(raw[0], &header); err != nil || len(header) < 3 {
		return nil, fmt.Errorf("%w: kyoku %d header", ErrInvalidLog, i)
	}

	k := &Kyoku{
		Index:          header[0],
		Honba:          header[1],
		Kyotaku:        header[2],
		RiichiDeclared: make([]bool, seats),
		RiichiOnLast:   make([]bool, seats),
		Open:           make([]bool, seats),
	}

	for seat := 0; seat < seats; seat++ {
		takes, err := decodeActions(raw[4+3*seat+1])
		if err != nil {
			return nil, fmt.Errorf("%w: kyoku %d seat %d takes: %v", ErrInvalidLog, i, seat, err)
		}
		discards, err := decodeActions(raw[4+3*seat+2])
		if err != nil {
			return nil, fmt.Errorf("%w: kyoku %d seat %d discards: %v", ErrInvalidLog, i, seat, err)
		}

		for _, t := range takes {
			// chi, pon and daiminkan open the hand, ankan does not
			if strings.ContainsAny(t, "cpm") {
				k.Open[seat] = true
			}
		}
		for j, d := range discards {
			if strings.HasPrefix(d, "r") {
				k.RiichiDeclared[seat] = true
				k.RiichiOnLast[seat] = j == len(discards)-1
			}
		}
	}

	agari, err := decodeResult(raw[len(raw)-1])
	if err != nil {
		return nil, fmt.Errorf("%w: kyoku %d result: %v", ErrInvalidLog, i, err)
	}
	k.Agari = agari

	return k, nil
}

// decodeActions turns a take or discard column into strings. Plain tiles are
// numbers, calls and riichi are strings.
func decodeActions(data json.RawMessage) ([]string, error) {
	var items []interface{}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, fmt.Sprintf("%d", int(v)))
		default:
			return nil, fmt.Errorf("unexpected action %v", item)
		}
	}
	return out, nil
}

// decodeResult reads ["和了", deltas, detail, deltas, detail, ...]. Any other
// result is a draw and yields no wins.
func decodeResult(data json.RawMessage) ([]Agari, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("empty result")
	}

	var kind string
	if err := json.Unmarshal(raw[0], &kind); err != nil {
		return nil, err
	}
	if kind != resultAgari {
		return nil, nil
	}
	if len(raw)%2 != 1 {
		return nil, errors.New("unpaired agari entries")
	}

	var wins []Agari
	for j := 1; j+1 < len(raw); j += 2 {
		var a Agari
		if err := json.Unmarshal(raw[j], &a.Deltas); err != nil {
			return nil, fmt.Errorf("deltas: %w", err)
		}

		var detail []interface{}
		if err := json.Unmarshal(raw[j+1], &detail); err != nil {
			return nil, fmt.Errorf("detail: %w", err)
		}
		if len(detail) < 4 {
			return nil, errors.New("short agari detail")
		}
		who, ok1 := detail[0].(float64)
		from, ok2 := detail[1].(float64)
		if !ok1 || !ok2 {
			return nil, errors.New("agari detail without seats")
		}
		a.Who, a.From = int(who), int(from)
		if a.Who < 0 || a.Who >= len(a.Deltas) || a.From < 0 || a.From >= len(a.Deltas) {
			return nil, fmt.Errorf("agari seat out of range")
		}

		// detail[2] is the pao seat, detail[3] the point summary
		for _, y := range detail[4:] {
			s, ok := y.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected yaku %v", y)
			}
			a.Yaku = append(a.Yaku, s)
		}
		wins = append(wins, a)
	}

	return wins, nil
}
