// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package scheduler

import (
	"strconv"
	"strings"
	"time"

	"github.com/rapidaai/voicecampaign/internal/model"
)

// withinCallHours reports whether now falls inside a campaign's optional
// call-hours window (spec §4.7). A campaign with no call-hours configured
// is always dispatchable. The window is interpreted in the campaign's
// own IANA timezone (SPEC_FULL supplement resolving an open question the
// distilled spec left silent on); an unparsable timezone or boundary
// degrades to "always open" rather than blocking dispatch entirely.
func withinCallHours(campaign *model.Campaign, now time.Time) bool {
	if campaign.CallHoursStart == nil || campaign.CallHoursEnd == nil {
		return true
	}

	loc, err := time.LoadLocation(campaign.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	startMin, ok := parseHHMM(*campaign.CallHoursStart)
	if !ok {
		return true
	}
	endMin, ok := parseHHMM(*campaign.CallHoursEnd)
	if !ok {
		return true
	}
	nowMin := local.Hour()*60 + local.Minute()

	if startMin <= endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	// window wraps past midnight, e.g. 22:00-06:00
	return nowMin >= startMin || nowMin < endMin
}

func parseHHMM(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
