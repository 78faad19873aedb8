/*
Package proto implements the message queue packet envelope.

# Packet

A packet looks like

	+------------------------+-----------------+------------+------------------+
	| 72-byte fixed header   | variable header | properties | body (can be     |
	|                        | (can be absent) | (optional) | absent)          |
	+------------------------+-----------------+------------+------------------+

All integers are big endian.

Fixed header (versions 200 and 301)

	      | 0| 1| 2| 3| 4| 5| 6| 7| 0| 1| 2| 3| 4| 5| 6| 7| 0| 1| 2| 3| 4| 5| 6| 7| 0| 1| 2| 3| 4| 5| 6| 7|
	 byte |                      0|                      1|                      2|                      3|
	------+-----------------------+-----------------------+-----------------------+-----------------------+
	    0 | magic number                                                                                  |
	------+-----------------------------------------------+-----------------------------------------------+
	    4 | version                                       | packet type                                   |
	------+-----------------------------------------------+-----------------------------------------------+
	    8 | packet size                                                                                   |
	------+-----------------------------------------------------------------------------------------------+
	   12 | expiration (8 bytes)                                                                          |
	------+-----------------------------------------------------------------------------------------------+
	   20 | system message id (32 bytes)                                                                  |
	------+-----------------------------------------------------------------------------------------------+
	   52 | properties offset                                                                             |
	------+-----------------------------------------------------------------------------------------------+
	   56 | properties size                                                                               |
	------+-----------------------+-----------------------+-----------------------------------------------+
	   60 | priority              | encryption            | flags                                         |
	------+-----------------------+-----------------------+-----------------------------------------------+
	   64 | consumer id (8 bytes)                                                                         |
	------+-----------------------------------------------------------------------------------------------+

	magic number:
	  469754818
	properties offset:
	  from the start of the packet, 72 + variable header size

Fixed header (version 103)

	Same as above up to the packet size, then
	   12 transaction id (4), 16 expiration (8), 24 system message id (32),
	   56 properties offset, 60 properties size, 64 priority, 65 encryption,
	   66 flags (low byte only), 68 consumer id (4)

System message id

	+------------------+-----------------------+-----------+-----------+
	| timestamp (8)    | IP address (16)       | port (4)  | seq (4)   |
	+------------------+-----------------------+-----------+-----------+

Variable header

	A list of (tag:2, length:2, value) triples terminated by tag 0 and padded
	with 1 to 4 zero bytes to a multiple of 4.

	  tag  1..7   destination, message id, correlation id, reply to, type,
	              destination class, reply to class (length prefixed UTF-8)
	  tag  8..10  transaction id, producer id, delivery time (int64)
	  tag 11      delivery count (int32)

Properties

	+-------------+-----------+--------------------------------------+
	| version (4) | count (4) | entries                              |
	+-------------+-----------+--------------------------------------+

	entry: key (2-byte length + UTF-8), type (2), value

	  1 bool   2 int8   3 int16   4 int32   5 int64
	  6 float32   7 float64   8 string   9 object (4-byte length + JSON)

Generic packet

	GPacket has its own 36-byte header (see GPacket) followed by the
	properties and the payload.
*/
package proto
