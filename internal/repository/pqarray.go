// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import "github.com/lib/pq"

// pqStringArray adapts a []string for use as a driver.Valuer in a
// postgres TEXT[] column via lib/pq's array support.
func pqStringArray(values []string) interface{} {
	return pq.Array(values)
}

// pqParseStringArray parses a postgres array literal such as
// `{a,b,"c d"}` returned from a scanned column whose destination was a
// bare string/[]byte rather than pq.Array (e.g. database/sql's generic
// row scanning path used by MessageRepository.scan).
func pqParseStringArray(raw string) []string {
	var out []string
	a := pq.GenericArray{A: &out}
	if err := a.Scan(raw); err != nil {
		return nil
	}
	return out
}
