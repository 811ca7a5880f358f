// Package stagepipe provides an ordered, stage-confined processing pipeline.
//
// A pipeline is assembled from typed stages drawn from a Registry and executed
// by threading a payload through every element in order. The package manages
// ordering, stage confinement, persistence and execution sequencing; the work a
// stage performs is owned by its StageImpl.
//
// Core components include:
//   - StageCategory: the fixed stage order Extractor < PreProcessor < Sorter < PostProcessor
//   - Registry: the catalog of instantiable stage types
//   - Element: one configured stage instance with an ordered parameter list
//   - Pipeline: the ordered collection enforcing stage ordering and singleton stages
//   - Serializer: SerializedPipeline documents with compatibility checks on load
//   - Runner: synchronous and asynchronous execution with element middleware
//
// Asynchronous runs always operate on a serialized copy of the pipeline, either
// on a goroutine, in a child process or on a remote gRPC worker.
package stagepipe
