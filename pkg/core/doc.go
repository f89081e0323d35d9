// Package core defines the shared language of mapsource.
//
// This package contains:
//   - Domain values (GeometryType, SchemaStatus, SourceOption, FetchState)
//   - Collaborator interfaces (NodeCollection, LayerCollection, TableCollection)
//
// pkg/core imports only the standard library. All other packages depend on
// core, not the reverse.
package core
