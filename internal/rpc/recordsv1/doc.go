// Package recordsv1 is the gRPC contract between the bizsync client and
// server.
//
// Records are schemaless documents, so messages are well-known protobuf
// types (structpb.Struct, wrapperspb.StringValue, emptypb.Empty) and the
// service descriptors are declared by hand instead of generated from a
// .proto file. The equivalent IDL is:
//
//	service Records {
//	  rpc Create(Struct{collection, record}) returns (Struct record);
//	  rpc Get(Struct{collection, id})        returns (Struct record);
//	  rpc List(Struct{collection})           returns (Struct{records});
//	  rpc Update(Struct{collection, id, fields}) returns (Empty);
//	  rpc Delete(Struct{collection, id})     returns (Empty);
//	}
//	service Auth {
//	  rpc Register(Struct{email, password, displayName, companyName}) returns (Struct session);
//	  rpc Login(Struct{email, password})     returns (Struct{accessToken, refreshToken, session});
//	  rpc Refresh(StringValue refreshToken)  returns (Struct{accessToken, refreshToken});
//	  rpc Ping(Empty)                        returns (StringValue);
//	}
package recordsv1
