package main

import "ypgattendance/internal/app"

// @title           YPG Attendance API
// @version         1.0
// @description     Authentication, security pin and login-attempt administration for the YPG attendance backend.
// @BasePath        /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	app.Run()
}
