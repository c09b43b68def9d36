//go:build android && cgo

package main

func main() {}
