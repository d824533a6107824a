// Copyright 2024 MIMIRO AS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"errors"
	"flag"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	LogType           string
	LogLevel          string
	ServiceName       string
	Port              int
	MemoryHeadroom    int
	TripleStoreURL    string
	DatasetName       string
	StoreTimeout      int
	OrganisationsFile string
}

func (c *Config) common() *flag.FlagSet {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.StringVar(&c.LogType, "log-type", "console", "Determines log type. Valid are console or json.")
	fs.StringVar(&c.LogLevel, "log-level", "info", "Log level. error, warn, trace, debug or info.")
	fs.StringVar(
		&c.ServiceName,
		"service",
		"catalogue-api",
		"Override service name. For logging purposes.",
	)
	fs.StringVar(&c.TripleStoreURL, "triplestore-url", "", "Base url of the triple store. Required.")
	fs.StringVar(&c.DatasetName, "dataset", "ds", "Triple store dataset holding the catalogue.")
	fs.IntVar(&c.StoreTimeout, "store-timeout", 30, "Timeout in seconds for triple store requests")
	fs.StringVar(&c.OrganisationsFile, "organisations", "", "YAML organisation directory. Uses the built in directory if empty.")
	return fs
}

func (c *Config) Flags() *flag.FlagSet {
	return c.common()
}

// ServerFlags add some extra flags when run as a server
func (c *Config) ServerFlags() *flag.FlagSet {
	fs := c.common()
	fs.IntVar(&c.Port, "port", 8080, "http server port")
	fs.IntVar(&c.MemoryHeadroom, "memory-headroom", 0, "minimum free memory in MB before uploads are rejected")
	return fs
}

// LoadEnv goes through all configuration fields and load values from ENV if present.
// Values from ENV will always overwrite params if they are present.
func (c *Config) LoadEnv() error {
	elems := []string{
		"LogType:LOG_TYPE",
		"LogLevel:LOG_LEVEL",
		"ServiceName:SERVICE_NAME",
		"Port:PORT",
		"MemoryHeadroom:MEMORY_HEADROOM",
		"TripleStoreURL:TRIPLESTORE_URL",
		"DatasetName:DATASET_NAME",
		"StoreTimeout:STORE_TIMEOUT",
		"OrganisationsFile:ORGANISATIONS_FILE",
	}
	o := reflect.ValueOf(c).Elem()
	for _, item := range elems {
		fieldName, env, _ := strings.Cut(item, ":")
		if v, ok := os.LookupEnv(env); ok {
			field := o.FieldByName(fieldName)
			if field.CanInt() {
				conv, err := strconv.Atoi(v)
				if err != nil {
					return err
				}
				field.Set(reflect.ValueOf(conv))
			} else {
				field.Set(reflect.ValueOf(v))
			}
		}
	}
	return nil
}

// Validate does some simple validity checking. If there are required values somewhere, they should be
// validated here.
func (c *Config) Validate() error {
	if c.TripleStoreURL == "" {
		return errors.New("must set triple store url")
	}
	if c.DatasetName == "" {
		return errors.New("must set dataset name")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	return nil
}

func (c *Config) storeBase() string {
	return strings.TrimSuffix(c.TripleStoreURL, "/") + "/" + c.DatasetName
}

// QueryURL is the SPARQL query endpoint of the catalogue dataset.
func (c *Config) QueryURL() string {
	return c.storeBase() + "/sparql"
}

// UpdateURL is the SPARQL update endpoint of the catalogue dataset.
func (c *Config) UpdateURL() string {
	return c.storeBase() + "/update"
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.StoreTimeout) * time.Second
}
