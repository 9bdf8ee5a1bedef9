package schema

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/syssam/aggrepo"
	"github.com/syssam/aggrepo/dialect"
)

// Defaults holds application-wide mapping settings, usually loaded once at
// startup:
//
//	schema: sales
//	dialect: postgres
//	infer_table_names: true
type Defaults struct {
	// Schema is used by tables that do not declare one.
	Schema string `yaml:"schema"`
	// Dialect names the SQL dialect of the application database. Mappings
	// built with these defaults carry it, and sqlgen.New uses it when no
	// dialect is named.
	Dialect string `yaml:"dialect"`
	// InferTableNames derives a missing table name by pluralizing the type name.
	InferTableNames bool `yaml:"infer_table_names"`
}

// LoadDefaults decodes Defaults from YAML. Unknown keys and unknown dialect
// names are configuration errors.
func LoadDefaults(r io.Reader) (*Defaults, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	d := &Defaults{}
	if err := dec.Decode(d); err != nil && !errors.Is(err, io.EOF) {
		return nil, aggrepo.NewConfigurationError("", "defaults", fmt.Sprintf("decoding yaml: %v", err))
	}
	if d.Dialect != "" {
		if _, err := dialect.Get(d.Dialect); err != nil {
			return nil, aggrepo.NewConfigurationError("", "dialect", err.Error())
		}
	}
	return d, nil
}
