// Package vda5050 holds the VDA5050 v2 documents exchanged over MQTT.
//
// Every subtopic has exactly one document type. Documents are plain data;
// validation is done by the Validate* functions in this package, and Decode
// selects the document type from a Subtopic value.
package vda5050
