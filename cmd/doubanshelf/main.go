// Package main provides the doubanshelf CLI.
//
// Usage:
//
//	doubanshelf scrape --cookies "$DOUBAN_COOKIES"
//	doubanshelf serve --listen :8080
package main

func main() {
	Execute()
}
