//
//  Copyright 2023 PayPal Inc.
//
//  Licensed to the Apache Software Foundation (ASF) under one or more
//  contributor license agreements.  See the NOTICE file distributed with
//  this work for additional information regarding copyright ownership.
//  The ASF licenses this file to You under the Apache License, Version 2.0
//  (the "License"); you may not use this file except in compliance with
//  the License.  You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//

package proto

import (
	"encoding/binary"
	"strconv"
)

type (
	PacketType uint16
	PacketFlag uint16
)

var (
	EncByteOrder = binary.BigEndian
)

const (
	Magic uint32 = 469754818

	Version1 uint16 = 103
	Version2 uint16 = 200
	Version3 uint16 = 301

	CurrentVersion = Version3

	HeaderSize = 72

	DefaultPriority = 5

	// MinMaxPacketSize is the lowest value SetMaxPacketSize accepts.
	MinMaxPacketSize = 512 * 1024
	// DefaultMaxPacketSize leaves the packet size effectively unbounded.
	DefaultMaxPacketSize = 0x7FFFFFFF
)

const (
	PacketTypeNull                     PacketType = 0
	PacketTypeTextMessage              PacketType = 1
	PacketTypeBytesMessage             PacketType = 2
	PacketTypeMapMessage               PacketType = 3
	PacketTypeStreamMessage            PacketType = 4
	PacketTypeObjectMessage            PacketType = 5
	PacketTypeMessage                  PacketType = 6
	PacketTypeSendReply                PacketType = 9
	PacketTypeHello                    PacketType = 10
	PacketTypeHelloReply               PacketType = 11
	PacketTypeAuthenticate             PacketType = 12
	PacketTypeAuthenticateReply        PacketType = 13
	PacketTypeAddConsumer              PacketType = 14
	PacketTypeAddConsumerReply         PacketType = 15
	PacketTypeDeleteConsumer           PacketType = 16
	PacketTypeDeleteConsumerReply      PacketType = 17
	PacketTypeAddProducer              PacketType = 18
	PacketTypeAddProducerReply         PacketType = 19
	PacketTypeStart                    PacketType = 20
	PacketTypeStop                     PacketType = 22
	PacketTypeStopReply                PacketType = 23
	PacketTypeAcknowledge              PacketType = 24
	PacketTypeAcknowledgeReply         PacketType = 25
	PacketTypeBrowse                   PacketType = 26
	PacketTypeBrowseReply              PacketType = 27
	PacketTypeGoodbye                  PacketType = 28
	PacketTypeGoodbyeReply             PacketType = 29
	PacketTypeError                    PacketType = 30
	PacketTypeRedeliver                PacketType = 32
	PacketTypeCreateDestination        PacketType = 34
	PacketTypeCreateDestinationReply   PacketType = 35
	PacketTypeDestroyDestination       PacketType = 36
	PacketTypeDestroyDestinationReply  PacketType = 37
	PacketTypeAuthenticateRequest      PacketType = 38
	PacketTypeVerifyDestination        PacketType = 40
	PacketTypeVerifyDestinationReply   PacketType = 41
	PacketTypeDeliver                  PacketType = 42
	PacketTypeDeliverReply             PacketType = 43
	PacketTypeStartTransaction         PacketType = 44
	PacketTypeStartTransactionReply    PacketType = 45
	PacketTypeCommitTransaction        PacketType = 46
	PacketTypeCommitTransactionReply   PacketType = 47
	PacketTypeRollbackTransaction      PacketType = 48
	PacketTypeRollbackTransactionReply PacketType = 49
	PacketTypeSetClientID              PacketType = 50
	PacketTypeSetClientIDReply         PacketType = 51
	PacketTypeResumeFlow               PacketType = 52
	PacketTypePing                     PacketType = 54
	PacketTypePingReply                PacketType = 55
	PacketTypePrepareTransaction       PacketType = 56
	PacketTypePrepareTransactionReply  PacketType = 57
	PacketTypeEndTransaction           PacketType = 58
	PacketTypeEndTransactionReply      PacketType = 59
	PacketTypeRecoverTransaction       PacketType = 60
	PacketTypeRecoverTransactionReply  PacketType = 61
	PacketTypeGenerateUID              PacketType = 62
	PacketTypeGenerateUIDReply         PacketType = 63
	PacketTypeFlowPaused               PacketType = 64
	PacketTypeDeleteProducer           PacketType = 66
	PacketTypeDeleteProducerReply      PacketType = 67
	PacketTypeCreateSession            PacketType = 68
	PacketTypeCreateSessionReply       PacketType = 69
	PacketTypeDestroySession           PacketType = 70
	PacketTypeDestroySessionReply      PacketType = 71
	PacketTypeInfoRequest              PacketType = 72
	PacketTypeInfo                     PacketType = 73
	PacketTypeDebug                    PacketType = 74
	PacketTypeGetLicense               PacketType = 76
	PacketTypeGetLicenseReply          PacketType = 77
	PacketTypeVerifyTransaction        PacketType = 78
	PacketTypeVerifyTransactionReply   PacketType = 79
)

const (
	FlagIsQueue            PacketFlag = 0x0001
	FlagRedelivered        PacketFlag = 0x0002
	FlagPersistent         PacketFlag = 0x0004
	FlagSelectorsProcessed PacketFlag = 0x0008
	FlagSendAck            PacketFlag = 0x0010
	FlagIsLastPkt          PacketFlag = 0x0020
	FlagFlowPaused         PacketFlag = 0x0040
	FlagIsTransacted       PacketFlag = 0x0080
	FlagConsumerFlowPaused PacketFlag = 0x0100
	FlagIsBrowse           PacketFlag = 0x0200
	FlagClientAck          PacketFlag = 0x0400
	FlagIndirect           PacketFlag = 0x0800
	FlagWildcard           PacketFlag = 0x1000
	legacyFlagMask         PacketFlag = 0x00FF
)

var (
	packetTypeNameMap = map[PacketType]string{
		PacketTypeNull:                     "NULL",
		PacketTypeTextMessage:              "TEXT_MESSAGE",
		PacketTypeBytesMessage:             "BYTES_MESSAGE",
		PacketTypeMapMessage:               "MAP_MESSAGE",
		PacketTypeStreamMessage:            "STREAM_MESSAGE",
		PacketTypeObjectMessage:            "OBJECT_MESSAGE",
		PacketTypeMessage:                  "MESSAGE",
		PacketTypeSendReply:                "SEND_REPLY",
		PacketTypeHello:                    "HELLO",
		PacketTypeHelloReply:               "HELLO_REPLY",
		PacketTypeAuthenticate:             "AUTHENTICATE",
		PacketTypeAuthenticateReply:        "AUTHENTICATE_REPLY",
		PacketTypeAddConsumer:              "ADD_CONSUMER",
		PacketTypeAddConsumerReply:         "ADD_CONSUMER_REPLY",
		PacketTypeDeleteConsumer:           "DELETE_CONSUMER",
		PacketTypeDeleteConsumerReply:      "DELETE_CONSUMER_REPLY",
		PacketTypeAddProducer:              "ADD_PRODUCER",
		PacketTypeAddProducerReply:         "ADD_PRODUCER_REPLY",
		PacketTypeStart:                    "START",
		PacketTypeStop:                     "STOP",
		PacketTypeStopReply:                "STOP_REPLY",
		PacketTypeAcknowledge:              "ACKNOWLEDGE",
		PacketTypeAcknowledgeReply:         "ACKNOWLEDGE_REPLY",
		PacketTypeBrowse:                   "BROWSE",
		PacketTypeBrowseReply:              "BROWSE_REPLY",
		PacketTypeGoodbye:                  "GOODBYE",
		PacketTypeGoodbyeReply:             "GOODBYE_REPLY",
		PacketTypeError:                    "ERROR",
		PacketTypeRedeliver:                "REDELIVER",
		PacketTypeCreateDestination:        "CREATE_DESTINATION",
		PacketTypeCreateDestinationReply:   "CREATE_DESTINATION_REPLY",
		PacketTypeDestroyDestination:       "DESTROY_DESTINATION",
		PacketTypeDestroyDestinationReply:  "DESTROY_DESTINATION_REPLY",
		PacketTypeAuthenticateRequest:      "AUTHENTICATE_REQUEST",
		PacketTypeVerifyDestination:        "VERIFY_DESTINATION",
		PacketTypeVerifyDestinationReply:   "VERIFY_DESTINATION_REPLY",
		PacketTypeDeliver:                  "DELIVER",
		PacketTypeDeliverReply:             "DELIVER_REPLY",
		PacketTypeStartTransaction:         "START_TRANSACTION",
		PacketTypeStartTransactionReply:    "START_TRANSACTION_REPLY",
		PacketTypeCommitTransaction:        "COMMIT_TRANSACTION",
		PacketTypeCommitTransactionReply:   "COMMIT_TRANSACTION_REPLY",
		PacketTypeRollbackTransaction:      "ROLLBACK_TRANSACTION",
		PacketTypeRollbackTransactionReply: "ROLLBACK_TRANSACTION_REPLY",
		PacketTypeSetClientID:              "SET_CLIENTID",
		PacketTypeSetClientIDReply:         "SET_CLIENTID_REPLY",
		PacketTypeResumeFlow:               "RESUME_FLOW",
		PacketTypePing:                     "PING",
		PacketTypePingReply:                "PING_REPLY",
		PacketTypePrepareTransaction:       "PREPARE_TRANSACTION",
		PacketTypePrepareTransactionReply:  "PREPARE_TRANSACTION_REPLY",
		PacketTypeEndTransaction:           "END_TRANSACTION",
		PacketTypeEndTransactionReply:      "END_TRANSACTION_REPLY",
		PacketTypeRecoverTransaction:       "RECOVER_TRANSACTION",
		PacketTypeRecoverTransactionReply:  "RECOVER_TRANSACTION_REPLY",
		PacketTypeGenerateUID:              "GENERATE_UID",
		PacketTypeGenerateUIDReply:         "GENERATE_UID_REPLY",
		PacketTypeFlowPaused:               "FLOW_PAUSED",
		PacketTypeDeleteProducer:           "DELETE_PRODUCER",
		PacketTypeDeleteProducerReply:      "DELETE_PRODUCER_REPLY",
		PacketTypeCreateSession:            "CREATE_SESSION",
		PacketTypeCreateSessionReply:       "CREATE_SESSION_REPLY",
		PacketTypeDestroySession:           "DESTROY_SESSION",
		PacketTypeDestroySessionReply:      "DESTROY_SESSION_REPLY",
		PacketTypeInfoRequest:              "INFO_REQUEST",
		PacketTypeInfo:                     "INFO",
		PacketTypeDebug:                    "DEBUG",
		PacketTypeGetLicense:               "GET_LICENSE",
		PacketTypeGetLicenseReply:          "GET_LICENSE_REPLY",
		PacketTypeVerifyTransaction:        "VERIFY_TRANSACTION",
		PacketTypeVerifyTransactionReply:   "VERIFY_TRANSACTION_REPLY",
	}

	packetFlagNames = []struct {
		flag PacketFlag
		name string
	}{
		{FlagIsQueue, "Q"},
		{FlagRedelivered, "R"},
		{FlagPersistent, "P"},
		{FlagSelectorsProcessed, "S"},
		{FlagSendAck, "A"},
		{FlagIsLastPkt, "L"},
		{FlagFlowPaused, "F"},
		{FlagIsTransacted, "T"},
		{FlagConsumerFlowPaused, "C"},
		{FlagIsBrowse, "B"},
		{FlagClientAck, "Z"},
		{FlagIndirect, "I"},
		{FlagWildcard, "W"},
	}
)

func (t PacketType) String() string {
	if name, ok := packetTypeNameMap[t]; ok {
		return name
	}
	return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

// IsReply reports whether t is a reply type: odd types from HELLO on, plus
// AUTHENTICATE_REQUEST which the broker sends in reply to HELLO.
func (t PacketType) IsReply() bool {
	return (t >= PacketTypeSendReply && t%2 == 1) || t == PacketTypeAuthenticateRequest
}

// IsMessage reports whether t carries an application message.
func (t PacketType) IsMessage() bool {
	return t >= PacketTypeTextMessage && t <= PacketTypeMessage
}

func (f PacketFlag) String() string {
	var b []byte
	for _, fn := range packetFlagNames {
		if f&fn.flag != 0 {
			b = append(b, fn.name...)
		}
	}
	if len(b) == 0 {
		return "-"
	}
	return string(b)
}
