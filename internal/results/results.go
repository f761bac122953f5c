// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package results accumulates run summaries from framework result
// documents.
//
// Result XML is opaque to the engine except for the summary attributes on
// the root element, which every supported framework emits.
package results

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/OndrejCopak-eaton/testcentric-engine/errors"
)

// Summary holds the counters of one or more runs.
type Summary struct {
	Total        int
	Passed       int
	Failed       int
	Warnings     int
	Inconclusive int
	Skipped      int
	// Result is "Passed" or "Failed"; aggregation fails if any part failed.
	Result string
}

// ParseSummary reads the summary attributes from the root element of a
// result document.
func ParseSummary(doc string) (*Summary, error) {
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		tok, err := dec.Token()
		if tok == nil || err != nil {
			return nil, errors.New("result document has no root element")
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		s := &Summary{Result: "Passed"}
		for _, attr := range start.Attr {
			var dst *int
			switch attr.Name.Local {
			case "total":
				dst = &s.Total
			case "passed":
				dst = &s.Passed
			case "failed":
				dst = &s.Failed
			case "warnings":
				dst = &s.Warnings
			case "inconclusive":
				dst = &s.Inconclusive
			case "skipped":
				dst = &s.Skipped
			case "result":
				s.Result = attr.Value
				continue
			default:
				continue
			}
			n, err := strconv.Atoi(attr.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "bad %s attribute %q", attr.Name.Local, attr.Value)
			}
			*dst = n
		}
		return s, nil
	}
}

// Add folds another summary into s.
func (s *Summary) Add(o *Summary) {
	s.Total += o.Total
	s.Passed += o.Passed
	s.Failed += o.Failed
	s.Warnings += o.Warnings
	s.Inconclusive += o.Inconclusive
	s.Skipped += o.Skipped
	if o.Result == "Failed" || s.Result == "" {
		s.Result = o.Result
	}
}
