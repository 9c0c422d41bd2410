// Package compiler turns scripts written in a small C-like language into
// bytecode for a register and stack virtual machine.
//
// Pipeline: source -> Preprocess -> Tokenize -> declaration and statement
// parser -> CodeGen -> CompiledScript. Every compilation owns a private
// Namespace of tokens seeded from a shared, immutable Seed, so independent
// units may be compiled concurrently.
package compiler
