// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import "github.com/arvados/sdpimpute"

func main() {
	sdpimpute.Main()
}
