// Copyright 2015 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// notify-mailer sends one ad-hoc operator notification through the
// configured Notifier port (spec §6 NOTIFY_EMAIL, Design Notes' SMTP
// open question). It exists so an operator can verify a mail relay is
// reachable, or push a one-off message, without waiting for C8 or C9 to
// trigger one on their own schedule.
package main

import (
	"context"
	"flag"
	"io/ioutil"
	"os"

	"github.com/icao-pkd/trustdir/cmd"
	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/notify"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	subject := flag.String("subject", "", "Notification subject")
	bodyFile := flag.String("body", "", "Path to a file containing the notification body; '-' reads stdin")
	flag.Parse()

	var c cmd.Config
	var err error
	if *configFile != "" {
		err = cmd.ReadConfigFile(*configFile, &c)
		cmd.FailOnError(err, "Reading config file")
	} else {
		c, err = cmd.LoadConfigFromEnv()
		cmd.FailOnError(err, "Loading configuration from environment")
	}

	_, logger := cmd.StatsAndLogging(c.Syslog)

	if *subject == "" || *bodyFile == "" {
		logger.Err("both -subject and -body are required")
		os.Exit(1)
	}

	var body []byte
	if *bodyFile == "-" {
		body, err = ioutil.ReadAll(os.Stdin)
	} else {
		body, err = ioutil.ReadFile(*bodyFile)
	}
	cmd.FailOnError(err, "Reading notification body")

	var notifier core.Notifier
	if c.Notify.Server != "" {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Server: c.Notify.Server, Port: c.Notify.Port,
			Username: c.Notify.Username, Password: string(c.Notify.Password),
			From: c.Notify.From, To: c.Notify.To,
		}, logger)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	err = notifier.Notify(context.Background(), *subject, string(body))
	cmd.FailOnError(err, "Sending notification")
}
