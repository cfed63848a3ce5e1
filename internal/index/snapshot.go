package index

import (
	"impactmap/internal/lang"
)

// Snapshot is the serializable form of a CodeIndex. Restoring a snapshot
// yields a structurally equal index: identical keys and value sets.
type Snapshot struct {
	Methods         map[string]*lang.MethodInfo `json:"methods"`
	ForwardCalls    map[string][]string         `json:"forwardCalls"`
	ReverseCalls    map[string][]string         `json:"reverseCalls"`
	InterfaceImpls  map[string][]string         `json:"interfaceImplementations"`
	ClassInterfaces map[string][]string         `json:"classInterfaces"`

	HttpProviders map[string]string            `json:"httpProviders"`
	HttpConsumers map[string][]string          `json:"httpConsumers"`
	Endpoints     map[string]lang.HttpEndpoint `json:"endpoints"`

	KafkaProducers map[string][]string `json:"kafkaProducers"`
	KafkaConsumers map[string][]string `json:"kafkaConsumers"`
	DbWriters      map[string][]string `json:"dbWriters"`
	DbReaders      map[string][]string `json:"dbReaders"`
	RedisWriters   map[string][]string `json:"redisWriters"`
	RedisReaders   map[string][]string `json:"redisReaders"`

	ConfigAssociations map[string][]string `json:"configAssociations"`
}

// Snapshot captures the index's maps for persistence
func (ci *CodeIndex) Snapshot() *Snapshot {
	return &Snapshot{
		Methods:            ci.methods,
		ForwardCalls:       ci.forwardCalls,
		ReverseCalls:       ci.reverseCalls,
		InterfaceImpls:     ci.interfaceImpls,
		ClassInterfaces:    ci.classInterfaces,
		HttpProviders:      ci.httpProviders,
		HttpConsumers:      ci.httpConsumers,
		Endpoints:          ci.endpoints,
		KafkaProducers:     ci.kafkaProducers,
		KafkaConsumers:     ci.kafkaConsumers,
		DbWriters:          ci.dbWriters,
		DbReaders:          ci.dbReaders,
		RedisWriters:       ci.redisWriters,
		RedisReaders:       ci.redisReaders,
		ConfigAssociations: ci.configAssociations,
	}
}

// FromSnapshot restores an index from its serialized form
func FromSnapshot(s *Snapshot) *CodeIndex {
	ci := NewCodeIndex()
	if s.Methods != nil {
		ci.methods = s.Methods
	}
	if s.ForwardCalls != nil {
		ci.forwardCalls = s.ForwardCalls
	}
	if s.ReverseCalls != nil {
		ci.reverseCalls = s.ReverseCalls
	}
	if s.InterfaceImpls != nil {
		ci.interfaceImpls = s.InterfaceImpls
	}
	if s.ClassInterfaces != nil {
		ci.classInterfaces = s.ClassInterfaces
	}
	if s.HttpProviders != nil {
		ci.httpProviders = s.HttpProviders
	}
	if s.HttpConsumers != nil {
		ci.httpConsumers = s.HttpConsumers
	}
	if s.Endpoints != nil {
		ci.endpoints = s.Endpoints
	}
	if s.KafkaProducers != nil {
		ci.kafkaProducers = s.KafkaProducers
	}
	if s.KafkaConsumers != nil {
		ci.kafkaConsumers = s.KafkaConsumers
	}
	if s.DbWriters != nil {
		ci.dbWriters = s.DbWriters
	}
	if s.DbReaders != nil {
		ci.dbReaders = s.DbReaders
	}
	if s.RedisWriters != nil {
		ci.redisWriters = s.RedisWriters
	}
	if s.RedisReaders != nil {
		ci.redisReaders = s.RedisReaders
	}
	if s.ConfigAssociations != nil {
		ci.configAssociations = s.ConfigAssociations
	}
	return ci
}
