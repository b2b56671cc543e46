//go:build !bridgedebug

package protocol

const panicOnDuplicate = false
