// Package main tripbot API.
//
// @title           tripbot API
// @version         1.0
// @description     Telegram trip planner: Stars payments, credits ledger and Mini-App auth.
// @BasePath        /
// @schemes         http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import "tripbot/app/cli"

func main() {
	cli.Execute()
}
