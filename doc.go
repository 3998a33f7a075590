// Copyright (c) nodegraph Authors.
// Licensed under the MIT License.

// Package nodegraph wires configuration, logging, telemetry, metrics and
// history storage into a ready-to-use workflow engine.
//
// Usage:
//
//	import "github.com/BaSui01/nodegraph"
//
//	cfg := config.MustLoad("nodegraph.yaml")
//	rt, err := nodegraph.New(cfg)
//	defer rt.Close(context.Background())
//	res, err := rt.Engine.Run(ctx, wf, map[string]any{"urls": urls})
//
// Workflows themselves are built with the workflow package.
package nodegraph
