// Package main provides the go-xcsign CLI tool for setting up code signing
// settings of Xcode projects.
//
// For the library API, see the signing subpackage:
//
//	import "github.com/aluedeke/go-xcsign/pkg/signing"
//
// # Installation
//
// Install the CLI:
//
//	go install github.com/aluedeke/go-xcsign@latest
package main
