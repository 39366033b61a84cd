// Package main provides the entry point for the OCR Menu Detector CLI.
//
// The detector extracts dishes, prices, and categories from photographed
// restaurant menus, either as a long-running HTTP service or as one-shot
// scans from the command line.
//
// Usage:
//
//	menudetector serve
//	menudetector scan menu.jpg --target-lang en
//
// See --help for all available options.
package main

import "github.com/joho/godotenv"

// main is the entry point for the detector.
func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	Execute()
}
