// Copyright 2020 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package borrowsum

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config lists the packages a repository wants checked, so that the set
// doesn't have to be repeated on every command line.
//
//	packages:
//	  - ./pkg/sql/colexec
//	  - ./pkg/util/encoding
//	keep_log: true
type Config struct {
	Packages []string `yaml:"packages"`
	KeepLog  bool     `yaml:"keep_log"`
}

// LoadConfig reads a Config from the YAML file at path.
func LoadConfig(path string) (Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.UnmarshalStrict(b, &c); err != nil {
		return c, fmt.Errorf("parsing %s: %w", path, err)
	}
	return c, nil
}
