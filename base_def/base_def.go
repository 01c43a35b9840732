//
// Copyright 2020 Brightgate Inc.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
//
// appliance shared constant definitions, Go

package base_def

const (
	ZERO_UUID = "00000000-0000-0000-0000-000000000000"

	APPLIANCE_ZMQ_URL = "tcp://127.0.0.1"

	// Station events are published here; subscribers dial in.
	WIFID_PUB_URL = APPLIANCE_ZMQ_URL + ":3133"

	TOPIC_PING      = "sys.ping"
	TOPIC_ENTITY    = "net.entity"
	TOPIC_EXCEPTION = "net.exception"

	WIFID_PROMETHEUS_PORT = ":3210"

	HOSTAPD_CTRL_DIR = "/var/run/hostapd"
)
