// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package experiment

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// ExportJSON serializes the complete experiment state, including variants,
// assignments, observations, and any analysis result, as indented JSON.
func (e *Engine) ExportJSON(experimentID string) ([]byte, error) {
	exp, err := e.Get(experimentID)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal experiment %s: %w", experimentID, err)
	}
	return data, nil
}

// ExportCSV writes the experiment's observations as flat rows, one per
// observation: variant, user_id, metric, value, timestamp (RFC 3339).
// Variants appear in insertion order, metrics alphabetically, and within a
// metric the observations keep their append order.
func (e *Engine) ExportCSV(experimentID string, w io.Writer) error {
	exp, err := e.Get(experimentID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"variant", "user_id", "metric", "value", "timestamp"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, v := range exp.Variants {
		metrics := make([]string, 0, len(v.Metrics))
		for name := range v.Metrics {
			metrics = append(metrics, name)
		}
		sort.Strings(metrics)

		for _, metric := range metrics {
			for _, obs := range v.Metrics[metric] {
				row := []string{
					v.Name,
					obs.UserID,
					metric,
					strconv.FormatFloat(obs.Value, 'f', -1, 64),
					obs.Timestamp.Format(time.RFC3339Nano),
				}
				if err := cw.Write(row); err != nil {
					return fmt.Errorf("write csv row: %w", err)
				}
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
