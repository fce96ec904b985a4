package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/rizkirmdhn/paipu/internal/common/logger"
	"github.com/rizkirmdhn/paipu/pkg/utils"
	"github.com/sirupsen/logrus"
)

// partialSuffix marks a download that never finished
const partialSuffix = ".part"

// CollectDir adds every regular file in dir to a new collector, in name order
func CollectDir(dir string, log *logrus.Logger) (*Collector, error) {
	clog := logger.NewComponentLogger(log, "stats")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read log directory: %w", err)
	}

	c := NewCollector()
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), partialSuffix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		clog.WithField("path", path).Info("Processing")

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
		parsed, err := ParseLog(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := c.Add(parsed); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	return c, nil
}

// Ranking returns the reported player names: more than minKyoku hands, no
// name containing an excluded fragment, most hands first
func (c *Collector) Ranking(minKyoku int, excludeNames []string) []string {
	var names []string
	for name, info := range c.Players {
		if info.KyokuCount <= minKyoku || excluded(name, excludeNames) {
			continue
		}
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		li, lj := c.Players[names[i]].KyokuCount, c.Players[names[j]].KyokuCount
		if li != lj {
			return li > lj
		}
		return names[i] < names[j]
	})
	return names
}

func excluded(name string, fragments []string) bool {
	for _, f := range fragments {
		if f != "" && strings.Contains(name, f) {
			return true
		}
	}
	return false
}

// YakuOrder returns every yaku seen, most frequent overall first
func (c *Collector) YakuOrder() []string {
	totals := make(map[string]int)
	for _, tally := range c.Yaku {
		for yaku, n := range tally {
			totals[yaku] += n
		}
	}

	order := make([]string, 0, len(totals))
	for yaku := range totals {
		order = append(order, yaku)
	}
	sort.Slice(order, func(i, j int) bool {
		if totals[order[i]] != totals[order[j]] {
			return totals[order[i]] > totals[order[j]]
		}
		return order[i] < order[j]
	})
	return order
}

// WriteInfo writes one row of counters per ranked player
func (c *Collector) WriteInfo(w io.Writer, ranking []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"name"}, Headers...)); err != nil {
		return err
	}
	for _, name := range ranking {
		if err := cw.Write(append([]string{name}, c.Players[name].Values()...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteYaku writes one column per yaku and one row per ranked player who won
// at least once
func (c *Collector) WriteYaku(w io.Writer, ranking []string) error {
	order := c.YakuOrder()

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"name"}, order...)); err != nil {
		return err
	}
	for _, name := range ranking {
		tally, ok := c.Yaku[name]
		if !ok {
			continue
		}
		row := make([]string, 0, len(order)+1)
		row = append(row, name)
		for _, yaku := range order {
			row = append(row, fmt.Sprintf("%d", tally[yaku]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Report collects cfg.LogDir and writes both CSV files
func Report(cfg *config.StatsConfig, log *logrus.Logger) (int, error) {
	c, err := CollectDir(cfg.LogDir, log)
	if err != nil {
		return 0, err
	}
	ranking := c.Ranking(cfg.MinKyoku, cfg.ExcludeNames)

	for _, out := range []struct {
		path  string
		write func(io.Writer, []string) error
	}{
		{cfg.InfoOutput, c.WriteInfo},
		{cfg.YakuOutput, c.WriteYaku},
	} {
		var b strings.Builder
		if err := out.write(&b, ranking); err != nil {
			return 0, fmt.Errorf("error encoding %s: %w", out.path, err)
		}
		if err := utils.WriteFile(out.path, []byte(b.String())); err != nil {
			return 0, fmt.Errorf("error writing %s: %w", out.path, err)
		}
	}

	return len(ranking), nil
}
