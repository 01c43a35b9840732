/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package broker

import (
	"time"

	"bgsta/ap_common/staassoc"
	"bgsta/base_def"
	"bgsta/common/wifi"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/pkg/errors"
	"github.com/satori/uuid"
)

func stringValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

func numberValue(n float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: n}}
}

func boolValue(b bool) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: b}}
}

func linksValue(links []staassoc.Link) *structpb.Value {
	list := &structpb.ListValue{}
	for _, l := range links {
		list.Values = append(list.Values, stringValue(l.String()))
	}
	return &structpb.Value{Kind: &structpb.Value_ListValue{ListValue: list}}
}

// StationEvent describes one station transition.  The station address travels
// as a number, like every other MAC on the bus.
func StationEvent(e *staassoc.Entry, ev staassoc.Event, sender string,
	now time.Time) *structpb.Struct {

	f := map[string]*structpb.Value{
		"uuid":      stringValue(uuid.NewV4().String()),
		"sender":    stringValue(sender),
		"timestamp": stringValue(now.UTC().Format(time.RFC3339Nano)),
		"mac":       numberValue(float64(e.Addr().Uint64())),
		"event":     stringValue(ev.String()),
		"mlo":       boolValue(e.IsMLO()),
		"active":    linksValue(e.ActiveLinks()),
		"stale":     linksValue(e.StaleLinks()),
	}
	if local, ok := e.LocalMLDAddr(); ok {
		f["ap_mld"] = numberValue(float64(local.Uint64()))
	}
	if t := e.ConnectedAt(); !t.IsZero() {
		f["connected_at"] = stringValue(t.UTC().Format(time.RFC3339Nano))
	}
	if ies := e.AssocElements(); len(ies) > 0 {
		caps, _ := wifi.Summarize(ies)
		f["ssid"] = stringValue(caps.SSID)
		f["modes"] = stringValue(caps.Modes())
	}

	return &structpb.Struct{Fields: f}
}

// ParseStationEvent decodes the payload of a TOPIC_ENTITY message.
func ParseStationEvent(data []byte) (*structpb.Struct, error) {
	pb := &structpb.Struct{}
	if err := proto.Unmarshal(data, pb); err != nil {
		return nil, errors.Wrap(err, "unmarshalling station event")
	}
	return pb, nil
}

// Observer publishes every station transition it sees.  Register it against
// the wildcard address.
type Observer struct {
	b   *Broker
	now func() time.Time
}

// NewObserver returns an Observer publishing through b.
func NewObserver(b *Broker, now func() time.Time) *Observer {
	return &Observer{b: b, now: now}
}

// StationChanged implements staassoc.Observer.
func (o *Observer) StationChanged(e *staassoc.Entry, ev staassoc.Event) {
	pb := StationEvent(e, ev, o.b.Name, o.now())
	if err := o.b.Publish(pb, base_def.TOPIC_ENTITY); err != nil {
		o.b.slog.Warnf("couldn't publish %s: %v", base_def.TOPIC_ENTITY, err)
	}
}
