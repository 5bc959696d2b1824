package fixtures

import (
	_ "embed"
)

//go:embed config/transpose.yaml.template
var ConfigTemplate []byte
