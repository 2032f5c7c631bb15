package config

import _ "embed"

//go:embed schema/shrekd.schema.json
var shrekdSchema []byte
