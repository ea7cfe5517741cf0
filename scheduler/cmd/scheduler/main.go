// Package main scheduler 服务入口
package main

import "yqhp/scheduler/cmd"

func main() {
	cmd.Execute()
}
