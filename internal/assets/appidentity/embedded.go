package appidentityassets

import _ "embed"

// YAML is the application identity compiled into the binary.
//
//go:embed app.yaml
var YAML []byte
