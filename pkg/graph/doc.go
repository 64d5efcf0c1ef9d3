// Package graph defines the interchange types Knurl shares with an external
// parametric graph evaluator: the flat node list a loaded graph exposes, the
// tagged geometry records an evaluation produces, and the nested outputs a
// node publishes. The evaluator itself is consumed through the Evaluator
// interface and treated as a black box.
package graph
