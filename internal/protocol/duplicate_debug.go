//go:build bridgedebug

package protocol

const panicOnDuplicate = true
